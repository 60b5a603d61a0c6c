package service

import (
	"context"
	"log/slog"

	"noiton/internal/access"
	"noiton/internal/identity"
	"noiton/internal/pkg/apperr"
	"noiton/internal/store"
)

const manageDenied = "Apenas o criador da tarefa pode gerenciar permissões"

// MyPermission 是调用方在任务上的访问级别与能力。
type MyPermission struct {
	Level       access.Level `json:"nivel_acesso"`
	Description string       `json:"descricao"`
	access.Capabilities
}

// PermissionService 管理任务上的显式授权。
type PermissionService struct {
	store  *store.Store
	access *access.Evaluator
	logger *slog.Logger
}

// NewPermissionService 创建授权服务。
func NewPermissionService(st *store.Store, ev *access.Evaluator, logger *slog.Logger) *PermissionService {
	return &PermissionService{store: st, access: ev, logger: logger}
}

// Grant 授予或覆盖用户在任务上的访问级别，需要删除级别权限。
//
// 参数:
//   - taskID: 任务 ID
//   - userID: 被授权用户
//   - level: 0 拥有者 / 1 编辑者 / 2 查看者
func (s *PermissionService) Grant(ctx context.Context, caller identity.Caller, taskID, userID uint, level int) error {
	if !access.Level(level).Valid() {
		return apperr.Validation("Nível de acesso inválido: use 0 (criador), 1 (editor) ou 2 (visualizador)")
	}
	if userID == 0 {
		return apperr.Validation("id_usuario é obrigatório")
	}
	if err := s.access.Require(ctx, taskID, caller.UserID, access.ActionDelete, manageDenied); err != nil {
		return err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return wrapErr(err, "Usuário não encontrado")
	}
	if err := s.store.UpsertGrant(ctx, taskID, userID, level); err != nil {
		return apperr.Internal(err)
	}
	s.logger.Info("task permission granted",
		slog.Uint64("task_id", uint64(taskID)),
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("level", level),
		slog.Uint64("granted_by", uint64(caller.UserID)))
	return nil
}

// Revoke 删除授权，不存在时不报错。需要删除级别权限。
func (s *PermissionService) Revoke(ctx context.Context, caller identity.Caller, taskID, userID uint) error {
	if err := s.access.Require(ctx, taskID, caller.UserID, access.ActionDelete, manageDenied); err != nil {
		return err
	}
	if err := s.store.DeleteGrant(ctx, taskID, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// List 返回任务上的授权，按级别升序、姓名升序。需要查看权限。
func (s *PermissionService) List(ctx context.Context, caller identity.Caller, taskID uint) ([]store.GrantInfo, error) {
	if err := s.access.Require(ctx, taskID, caller.UserID, access.ActionView, ""); err != nil {
		return nil, err
	}
	grants, err := s.store.ListGrants(ctx, taskID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return grants, nil
}

// Mine 返回调用方自己的访问级别；没有任何访问时返回 Authorization。
func (s *PermissionService) Mine(ctx context.Context, caller identity.Caller, taskID uint) (*MyPermission, error) {
	level, err := s.access.Resolve(ctx, taskID, caller.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !access.Can(level, access.ActionView) {
		return nil, s.access.Require(ctx, taskID, caller.UserID, access.ActionView, "Você não tem acesso a esta tarefa")
	}
	return &MyPermission{
		Level:        level,
		Description:  access.Describe(level),
		Capabilities: access.CapabilitiesOf(level),
	}, nil
}
