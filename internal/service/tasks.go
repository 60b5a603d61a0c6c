package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"noiton/internal/access"
	"noiton/internal/identity"
	"noiton/internal/model"
	"noiton/internal/pkg/apperr"
	"noiton/internal/pkg/blob"
	"noiton/internal/pkg/metrics"
	"noiton/internal/pkg/timeutil"
	"noiton/internal/store"
)

// 完成任务获得的积分。
const (
	PointsOnTime = 1.0
	PointsLate   = 0.5
)

// TaskInput 是创建任务的请求体。
type TaskInput struct {
	WorkspaceID uint           `json:"id_workspace"`
	Title       string         `json:"titulo"`
	Description string         `json:"descricao"`
	DueDate     *timeutil.Time `json:"data_fim"`
	Priority    string         `json:"prioridade"`
	Status      string         `json:"status"`
	Done        bool           `json:"concluida"`
	Recurring   bool           `json:"recorrente"`
	Recurrence  *string        `json:"recorrencia"`
	Categories  []uint         `json:"categorias"`
}

// TaskPatch 是稀疏更新请求体，nil 字段保持不变。
type TaskPatch struct {
	Title       *string        `json:"titulo"`
	Description *string        `json:"descricao"`
	DueDate     *timeutil.Time `json:"data_fim"`
	Priority    *string        `json:"prioridade"`
	Status      *string        `json:"status"`
	Done        *bool          `json:"concluida"`
	Recurring   *bool          `json:"recorrente"`
	Recurrence  *string        `json:"recorrencia"`
	Categories  *[]uint        `json:"categorias"` // 提供时整体替换分类关联
}

// UpdateResult 是更新后的任务与本次发放的积分。
type UpdateResult struct {
	Task          *model.Task `json:"tarefa"`
	PointsAwarded float64     `json:"pontos_ganhos"`
}

// TaskService 管理任务生命周期。
type TaskService struct {
	store  *store.Store
	access *access.Evaluator
	blobs  blob.Store
	index  TaskIndex
	logger *slog.Logger
	now    clock
}

// NewTaskService 创建任务服务。index 与 blobs 可以为 nil。
func NewTaskService(st *store.Store, ev *access.Evaluator, blobs blob.Store, index TaskIndex, logger *slog.Logger) *TaskService {
	return &TaskService{store: st, access: ev, blobs: blobs, index: index, logger: logger, now: time.Now}
}

// CompletionPoints 计算任务进入完成状态时发放的积分。
//
// 在截止时间之前（含）完成得 1.0 分，逾期或没有截止时间得 0.5 分。
func CompletionPoints(now time.Time, due *time.Time) float64 {
	if due != nil && !now.After(*due) {
		return PointsOnTime
	}
	return PointsLate
}

// Create 在工作区内创建任务，调用方成为拥有者。
//
// 任务行、工作区关联与分类关联分步写入，中途失败会留下已创建的任务。
//
// 参数:
//   - caller: 当前用户
//   - in: 任务内容，id_workspace 与 titulo 必填
//
// 返回值:
//   - *model.Task: 新建的任务（含分类）
//   - error: 非成员返回 Authorization，同工作区标题重复返回 Conflict
func (s *TaskService) Create(ctx context.Context, caller identity.Caller, in TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("O título da tarefa é obrigatório")
	}
	if in.WorkspaceID == 0 {
		return nil, apperr.Validation("id_workspace é obrigatório")
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !model.ValidPriority(in.Priority) {
		return nil, apperr.Validation("Prioridade inválida: %s", in.Priority)
	}
	if in.Status == "" {
		in.Status = model.StatusTodo
		if in.Done {
			in.Status = model.StatusDone
		}
	}
	if !model.ValidStatus(in.Status) {
		return nil, apperr.Validation("Status inválido: %s", in.Status)
	}
	recurrence, err := normalizeRecurrence(in.Recurrence)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.store, in.WorkspaceID, caller.Email); err != nil {
		return nil, err
	}
	if err := s.checkCategories(ctx, in.Categories, []uint{in.WorkspaceID}); err != nil {
		return nil, err
	}

	task := &model.Task{
		Title:       title,
		Description: in.Description,
		DueDate:     in.DueDate.Ptr(),
		Priority:    in.Priority,
		Status:      in.Status,
		Done:        in.Status == model.StatusDone,
		Recurring:   in.Recurring,
		Recurrence:  recurrence,
		OwnerID:     caller.UserID,
		WorkspaceID: in.WorkspaceID,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, titleConflict(err)
	}
	if err := s.store.LinkTaskWorkspace(ctx, task.ID, in.WorkspaceID); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.store.LinkTaskCategories(ctx, task.ID, in.Categories); err != nil {
		return nil, apperr.Internal(err)
	}

	created, err := s.store.GetTask(ctx, task.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.reindex(ctx, *created)
	s.logger.Info("task created",
		slog.Uint64("task_id", uint64(created.ID)),
		slog.Uint64("workspace_id", uint64(in.WorkspaceID)),
		slog.Uint64("owner_id", uint64(caller.UserID)))
	return created, nil
}

// Update 稀疏更新任务，需要编辑权限。
//
// 状态从未完成变为 concluido 时，在同一事务内给拥有者发放积分；
// 已完成的任务再次标记完成不会重复发放。
func (s *TaskService) Update(ctx context.Context, caller identity.Caller, taskID uint, p TaskPatch) (*UpdateResult, error) {
	if err := s.access.Require(ctx, taskID, caller.UserID, access.ActionEdit, ""); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Categories != nil && len(*p.Categories) > 0 {
		scope, err := s.categoryScope(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if err := s.checkCategories(ctx, *p.Categories, scope); err != nil {
			return nil, err
		}
	}

	var awarded float64
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		cur, err := tx.GetTaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		updates := p.updates(cur)
		if err := tx.UpdateTask(ctx, taskID, updates); err != nil {
			return err
		}
		if p.Categories != nil {
			if err := tx.UnlinkTaskCategories(ctx, taskID, 0); err != nil {
				return err
			}
			if err := tx.LinkTaskCategories(ctx, taskID, *p.Categories); err != nil {
				return err
			}
		}
		if next, ok := updates["status"].(string); ok && next == model.StatusDone && cur.Status != model.StatusDone {
			due := cur.DueDate
			if d, ok := updates["due_date"].(time.Time); ok {
				due = &d
			}
			awarded = CompletionPoints(s.now(), due)
			if err := tx.AddPoints(ctx, cur.OwnerID, awarded); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, titleConflict(err)
		}
		return nil, wrapErr(err, "Tarefa não encontrada")
	}
	if awarded > 0 {
		metrics.PointsAwardedTotal.Add(awarded)
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, wrapErr(err, "Tarefa não encontrada")
	}
	s.reindex(ctx, *task)
	return &UpdateResult{Task: task, PointsAwarded: awarded}, nil
}

// Delete 删除任务及其全部依赖数据，只有拥有者可以删除。
//
// 返回值:
//   - bool: 调用方不是拥有者或任务不存在时为 false
//   - error: 事务失败时返回 Internal
func (s *TaskService) Delete(ctx context.Context, caller identity.Caller, taskID uint) (bool, error) {
	owner, err := s.store.IsTaskOwner(ctx, taskID, caller.UserID)
	if err != nil {
		return false, apperr.Internal(err)
	}
	if !owner {
		return false, nil
	}
	return s.Cascade(ctx, taskID)
}

// Cascade 在一个事务中删除任务及其评论、举报、授权、分类关联、工作区关联与附件。
// 任务不存在时返回 false 且不报错。
func (s *TaskService) Cascade(ctx context.Context, taskID uint) (bool, error) {
	existed, attachments, err := s.store.DeleteTaskCascade(ctx, taskID)
	if err != nil {
		metrics.CascadeDeletesTotal.WithLabelValues("tarefa", "error").Inc()
		s.logger.Error("task cascade failed", slog.Uint64("task_id", uint64(taskID)), slog.String("error", err.Error()))
		return false, apperr.Internal(err)
	}
	if !existed {
		metrics.CascadeDeletesTotal.WithLabelValues("tarefa", "missing").Inc()
		return false, nil
	}
	metrics.CascadeDeletesTotal.WithLabelValues("tarefa", "ok").Inc()
	removeBlobs(ctx, s.blobs, s.logger, attachments)
	if s.index != nil {
		s.index.RemoveTask(taskID)
	}
	s.logger.Info("task deleted", slog.Uint64("task_id", uint64(taskID)), slog.Int("attachments", len(attachments)))
	return true, nil
}

// DeleteOrDeny 删除任务，失败时区分任务不存在与无权限。
func (s *TaskService) DeleteOrDeny(ctx context.Context, caller identity.Caller, taskID uint) error {
	ok, err := s.Delete(ctx, caller, taskID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	exists, err := s.store.TaskExists(ctx, taskID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !exists {
		return apperr.NotFound("Tarefa não encontrada")
	}
	return apperr.Authorization("Apenas o criador da tarefa pode apagá-la")
}

// ListByWorkspace 返回工作区内的任务，需要是工作区成员。
func (s *TaskService) ListByWorkspace(ctx context.Context, caller identity.Caller, workspaceID uint) ([]model.Task, error) {
	if err := requireMember(ctx, s.store, workspaceID, caller.Email); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasksByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return tasks, nil
}

// Filter 按条件查询工作区任务。
//
// 关键词优先走检索索引，索引不可用时回退到 SQL LIKE。
func (s *TaskService) Filter(ctx context.Context, caller identity.Caller, f store.TaskFilter) ([]model.Task, error) {
	if err := requireMember(ctx, s.store, f.WorkspaceID, caller.Email); err != nil {
		return nil, err
	}
	if f.Priority != "" && !model.ValidPriority(f.Priority) {
		return nil, apperr.Validation("Prioridade inválida: %s", f.Priority)
	}
	if f.Status != "" && !model.ValidStatus(f.Status) {
		return nil, apperr.Validation("Status inválido: %s", f.Status)
	}
	if kw := strings.TrimSpace(f.Keywords); kw != "" && s.index != nil {
		ids, err := s.index.SearchTaskIDs(ctx, f.WorkspaceID, kw)
		if err == nil {
			f.IDs = ids
			f.Keywords = ""
		}
	}
	tasks, err := s.store.FilterTasks(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return tasks, nil
}

// GetInWorkspace 返回工作区内的单个任务。
func (s *TaskService) GetInWorkspace(ctx context.Context, caller identity.Caller, workspaceID, taskID uint) (*model.Task, error) {
	if err := requireMember(ctx, s.store, workspaceID, caller.Email); err != nil {
		return nil, err
	}
	task, err := s.store.GetTaskInWorkspace(ctx, taskID, workspaceID)
	if err != nil {
		return nil, wrapErr(err, "Tarefa não encontrada neste workspace")
	}
	return task, nil
}

// ListAccessible 返回调用方拥有或被授权的任务及其访问级别。
func (s *TaskService) ListAccessible(ctx context.Context, caller identity.Caller) ([]store.AccessibleTask, error) {
	tasks, err := s.store.ListAccessibleTasks(ctx, caller.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return tasks, nil
}

// AssociateCategories 给任务关联分类，已存在的关联会被跳过。只检查任务是否存在。
func (s *TaskService) AssociateCategories(ctx context.Context, taskID uint, categoryIDs []uint) error {
	if len(categoryIDs) == 0 {
		return apperr.Validation("Informe ao menos uma categoria")
	}
	if err := s.requireTask(ctx, taskID); err != nil {
		return err
	}
	scope, err := s.categoryScope(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.checkCategories(ctx, categoryIDs, scope); err != nil {
		return err
	}
	if err := s.store.LinkTaskCategories(ctx, taskID, categoryIDs); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RemoveCategories 解除任务与分类的关联；categoryID 为 0 时解除全部。只检查任务是否存在。
func (s *TaskService) RemoveCategories(ctx context.Context, taskID, categoryID uint) error {
	if err := s.requireTask(ctx, taskID); err != nil {
		return err
	}
	if err := s.store.UnlinkTaskCategories(ctx, taskID, categoryID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Categories 返回任务关联的分类。
func (s *TaskService) Categories(ctx context.Context, taskID uint) ([]model.Category, error) {
	if err := s.requireTask(ctx, taskID); err != nil {
		return nil, err
	}
	cats, err := s.store.TaskCategories(ctx, taskID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return cats, nil
}

// LinkWorkspace 把任务共享到另一个工作区。需要任务编辑权限并且是目标工作区成员。
func (s *TaskService) LinkWorkspace(ctx context.Context, caller identity.Caller, taskID, workspaceID uint) error {
	if workspaceID == 0 {
		return apperr.Validation("id_workspace é obrigatório")
	}
	if err := s.access.Require(ctx, taskID, caller.UserID, access.ActionEdit, ""); err != nil {
		return err
	}
	if err := requireMember(ctx, s.store, workspaceID, caller.Email); err != nil {
		return err
	}
	if err := s.store.LinkTaskWorkspace(ctx, taskID, workspaceID); err != nil {
		return apperr.Internal(err)
	}
	if task, err := s.store.GetTask(ctx, taskID); err == nil {
		s.reindex(ctx, *task)
	}
	return nil
}

// UnlinkWorkspace 把任务从工作区移除，需要任务编辑权限。
func (s *TaskService) UnlinkWorkspace(ctx context.Context, caller identity.Caller, taskID, workspaceID uint) error {
	if err := s.access.Require(ctx, taskID, caller.UserID, access.ActionEdit, ""); err != nil {
		return err
	}
	if err := s.store.UnlinkTaskWorkspace(ctx, taskID, workspaceID); err != nil {
		return apperr.Internal(err)
	}
	if task, err := s.store.GetTask(ctx, taskID); err == nil {
		s.reindex(ctx, *task)
	}
	return nil
}

func (s *TaskService) requireTask(ctx context.Context, taskID uint) error {
	ok, err := s.store.TaskExists(ctx, taskID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.NotFound("Tarefa não encontrada")
	}
	return nil
}

// checkCategories 要求所有分类存在且属于给定的工作区之一。
func (s *TaskService) checkCategories(ctx context.Context, ids []uint, workspaceIDs []uint) error {
	if len(ids) == 0 {
		return nil
	}
	missing, err := s.store.MissingCategoryIDs(ctx, ids, workspaceIDs...)
	if err != nil {
		return apperr.Internal(err)
	}
	if len(missing) > 0 {
		return apperr.NotFound("Categoria não encontrada neste workspace").WithDetails(map[string]any{"categorias_inexistentes": missing})
	}
	return nil
}

// categoryScope 返回任务可使用分类的工作区：所属工作区与所有关联工作区。
func (s *TaskService) categoryScope(ctx context.Context, taskID uint) ([]uint, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, wrapErr(err, "Tarefa não encontrada")
	}
	linked, err := s.store.TaskWorkspaceIDs(ctx, taskID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return append([]uint{task.WorkspaceID}, linked...), nil
}

func (s *TaskService) reindex(ctx context.Context, task model.Task) {
	if s.index == nil {
		return
	}
	wsIDs, err := s.store.TaskWorkspaceIDs(ctx, task.ID)
	if err != nil {
		s.logger.Warn("load task workspaces for index failed", slog.String("error", err.Error()))
		return
	}
	s.index.IndexTask(task, wsIDs)
}

func normalizeRecurrence(r *string) (*string, error) {
	if r == nil || strings.TrimSpace(*r) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*r)
	if !model.ValidRecurrence(v) {
		return nil, apperr.Validation("Recorrência inválida: %s", v)
	}
	return &v, nil
}

func titleConflict(err error) error {
	if apperr.IsUniqueViolation(err) {
		return &apperr.Error{Kind: apperr.KindConflict, Message: "Já existe uma tarefa com este título neste workspace", Cause: err}
	}
	return apperr.From(err)
}

func (p TaskPatch) validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return apperr.Validation("O título da tarefa não pode ser vazio")
	}
	if p.Priority != nil && !model.ValidPriority(*p.Priority) {
		return apperr.Validation("Prioridade inválida: %s", *p.Priority)
	}
	if p.Status != nil && !model.ValidStatus(*p.Status) {
		return apperr.Validation("Status inválido: %s", *p.Status)
	}
	if _, err := normalizeRecurrence(p.Recurrence); err != nil {
		return err
	}
	return nil
}

// updates 把补丁转换为列更新。status 与 concluida 保持一致：
// 提供 status 时以 status 为准；只提供 concluida 时推导 status。
func (p TaskPatch) updates(cur *model.Task) map[string]interface{} {
	u := map[string]interface{}{}
	if p.Title != nil {
		u["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		u["description"] = *p.Description
	}
	if d := p.DueDate.Ptr(); d != nil {
		u["due_date"] = *d
	}
	if p.Priority != nil {
		u["priority"] = *p.Priority
	}
	switch {
	case p.Status != nil:
		u["status"] = *p.Status
		u["done"] = *p.Status == model.StatusDone
	case p.Done != nil && *p.Done:
		u["status"] = model.StatusDone
		u["done"] = true
	case p.Done != nil && !*p.Done:
		u["done"] = false
		if cur.Status == model.StatusDone {
			u["status"] = model.StatusTodo
		}
	}
	if p.Recurring != nil {
		u["recurring"] = *p.Recurring
	}
	if p.Recurrence != nil {
		rec, _ := normalizeRecurrence(p.Recurrence)
		u["recurrence"] = rec
	}
	return u
}

var errNotMember = errors.New("not a workspace member")

// requireMember 检查调用方是工作区成员或创建者。
func requireMember(ctx context.Context, st *store.Store, workspaceID uint, email string) error {
	if workspaceID == 0 {
		return apperr.Validation("id_workspace é obrigatório")
	}
	ws, err := st.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return wrapErr(err, "Workspace não encontrado")
	}
	if strings.EqualFold(ws.Creator, email) {
		return nil
	}
	ok, err := st.IsMember(ctx, workspaceID, email)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return &apperr.Error{
			Kind:    apperr.KindAuthorization,
			Message: "Você não é membro deste workspace",
			Cause:   fmt.Errorf("%w: %s in %d", errNotMember, email, workspaceID),
		}
	}
	return nil
}
