// Package access 计算用户在任务上的访问级别，并据此判断查看、编辑、删除权限。
//
// 解析规则：先查显式授权；存在授权时直接返回其级别（即使用户是任务拥有者）。
// 没有授权时，拥有者视为级别 0，其他用户无权限。
package access

import (
	"context"
	"fmt"

	"noiton/internal/pkg/apperr"
)

// Level 是任务访问级别。数值越小权限越大。
type Level int

const (
	LevelNone   Level = -1
	LevelOwner  Level = 0
	LevelEditor Level = 1
	LevelViewer Level = 2
)

// Valid 判断级别是否可以写入授权表。
func (l Level) Valid() bool {
	return l == LevelOwner || l == LevelEditor || l == LevelViewer
}

// Action 是需要鉴权的任务操作。
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Can 判断某个级别是否允许执行操作。
func Can(level Level, action Action) bool {
	switch action {
	case ActionView:
		return level == LevelOwner || level == LevelEditor || level == LevelViewer
	case ActionEdit:
		return level == LevelOwner || level == LevelEditor
	case ActionDelete:
		return level == LevelOwner
	default:
		return false
	}
}

// Describe 返回级别的描述文本。
func Describe(level Level) string {
	switch level {
	case LevelOwner:
		return "Criador (pode ver, editar e apagar)"
	case LevelEditor:
		return "Editor (pode ver e editar)"
	case LevelViewer:
		return "Visualizador (pode apenas ver)"
	default:
		return "Nível desconhecido"
	}
}

// Capabilities 是级别展开后的能力标记。
type Capabilities struct {
	CanView   bool `json:"pode_ver"`
	CanEdit   bool `json:"pode_editar"`
	CanDelete bool `json:"pode_apagar"`
}

// CapabilitiesOf 计算级别对应的能力标记。
func CapabilitiesOf(level Level) Capabilities {
	return Capabilities{
		CanView:   Can(level, ActionView),
		CanEdit:   Can(level, ActionEdit),
		CanDelete: Can(level, ActionDelete),
	}
}

// GrantLookup 提供评估所需的两次点查询。
type GrantLookup interface {
	// FindGrantLevel 返回显式授权级别；found 为 false 表示没有授权记录。
	FindGrantLevel(ctx context.Context, taskID, userID uint) (level int, found bool, err error)
	// IsTaskOwner 判断用户是否为任务拥有者。
	IsTaskOwner(ctx context.Context, taskID, userID uint) (bool, error)
	// TaskExists 判断任务是否存在，只在拒绝访问后用于区分 404 与 403。
	TaskExists(ctx context.Context, taskID uint) (bool, error)
}

// Evaluator 是唯一的任务访问判定入口。
type Evaluator struct {
	lookup GrantLookup
}

// NewEvaluator 创建 Evaluator。
func NewEvaluator(lookup GrantLookup) *Evaluator {
	return &Evaluator{lookup: lookup}
}

// Resolve 计算用户在任务上的访问级别。
//
// 参数:
//
//	taskID: 任务 ID
//	userID: 用户 ID
//
// 返回值:
//
//	Level: 0/1/2 或 LevelNone
//	error: 查询失败时返回错误
func (e *Evaluator) Resolve(ctx context.Context, taskID, userID uint) (Level, error) {
	level, found, err := e.lookup.FindGrantLevel(ctx, taskID, userID)
	if err != nil {
		return LevelNone, fmt.Errorf("find grant: %w", err)
	}
	if found {
		return Level(level), nil
	}
	owner, err := e.lookup.IsTaskOwner(ctx, taskID, userID)
	if err != nil {
		return LevelNone, fmt.Errorf("check owner: %w", err)
	}
	if owner {
		return LevelOwner, nil
	}
	return LevelNone, nil
}

// Allowed 判断用户能否对任务执行操作。
func (e *Evaluator) Allowed(ctx context.Context, taskID, userID uint, action Action) (bool, error) {
	level, err := e.Resolve(ctx, taskID, userID)
	if err != nil {
		return false, err
	}
	return Can(level, action), nil
}

// Require 在无权限时返回业务错误。
//
// 任务不存在时返回 NotFound，否则返回 Authorization；deniedMsg 为空时使用默认文案。
func (e *Evaluator) Require(ctx context.Context, taskID, userID uint, action Action, deniedMsg string) error {
	ok, err := e.Allowed(ctx, taskID, userID, action)
	if err != nil {
		return apperr.Internal(err)
	}
	if ok {
		return nil
	}
	exists, err := e.lookup.TaskExists(ctx, taskID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("probe task: %w", err))
	}
	if !exists {
		return apperr.NotFound("Tarefa não encontrada")
	}
	if deniedMsg == "" {
		deniedMsg = defaultDeniedMessage(action)
	}
	return apperr.Authorization("%s", deniedMsg)
}

func defaultDeniedMessage(action Action) string {
	switch action {
	case ActionEdit:
		return "Você não tem permissão para editar esta tarefa"
	case ActionDelete:
		return "Apenas o criador da tarefa pode apagá-la"
	default:
		return "Você não tem permissão para visualizar esta tarefa"
	}
}
