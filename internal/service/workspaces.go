package service

import (
	"context"
	"log/slog"
	"strings"

	"noiton/internal/identity"
	"noiton/internal/model"
	"noiton/internal/pkg/apperr"
	"noiton/internal/pkg/blob"
	"noiton/internal/pkg/metrics"
	"noiton/internal/store"
)

// WorkspaceInput 是创建工作区的请求体。
type WorkspaceInput struct {
	Name   string   `json:"nome"`
	IsTeam bool     `json:"equipe"`
	Emails []string `json:"emails"`
}

// WorkspacePatch 是工作区的稀疏更新。
type WorkspacePatch struct {
	Name   *string `json:"nome"`
	IsTeam *bool   `json:"equipe"`
}

// WorkspaceService 管理工作区与成员。
type WorkspaceService struct {
	store  *store.Store
	blobs  blob.Store
	logger *slog.Logger
}

// NewWorkspaceService 创建工作区服务。
func NewWorkspaceService(st *store.Store, blobs blob.Store, logger *slog.Logger) *WorkspaceService {
	return &WorkspaceService{store: st, blobs: blobs, logger: logger}
}

// Create 创建工作区，调用方成为创建者并自动加入成员。
func (s *WorkspaceService) Create(ctx context.Context, caller identity.Caller, in WorkspaceInput) (*model.Workspace, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("O nome do workspace é obrigatório")
	}
	emails := normalizeEmails(append([]string{caller.Email}, in.Emails...))
	ws := &model.Workspace{Name: name, IsTeam: in.IsTeam, Creator: caller.Email}
	if err := s.store.CreateWorkspace(ctx, ws, emails); err != nil {
		return nil, apperr.From(err)
	}
	ws.Emails = emails
	s.logger.Info("workspace created", slog.Uint64("workspace_id", uint64(ws.ID)), slog.String("creator", caller.Email))
	return ws, nil
}

// List 返回调用方参与的工作区。
func (s *WorkspaceService) List(ctx context.Context, caller identity.Caller) ([]model.Workspace, error) {
	list, err := s.store.ListWorkspacesByEmail(ctx, caller.Email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// Get 返回工作区详情，需要是成员。
func (s *WorkspaceService) Get(ctx context.Context, caller identity.Caller, id uint) (*model.Workspace, error) {
	if err := requireMember(ctx, s.store, id, caller.Email); err != nil {
		return nil, err
	}
	ws, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "Workspace não encontrado")
	}
	emails, err := s.store.MemberEmails(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	ws.Emails = emails
	return ws, nil
}

// Update 修改名称或团队标记，只有创建者可以修改。
func (s *WorkspaceService) Update(ctx context.Context, caller identity.Caller, id uint, p WorkspacePatch) (*model.Workspace, error) {
	if _, err := s.requireCreator(ctx, caller, id, "Apenas o criador pode atualizar o workspace"); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, apperr.Validation("O nome do workspace é obrigatório")
		}
		updates["name"] = name
	}
	if p.IsTeam != nil {
		updates["is_team"] = *p.IsTeam
	}
	if len(updates) > 0 {
		if err := s.store.UpdateWorkspace(ctx, id, updates); err != nil {
			return nil, apperr.Internal(err)
		}
	}
	return s.Get(ctx, caller, id)
}

// Delete 级联删除工作区，只有创建者可以删除。
//
// 只属于该工作区的任务被删除，共享到其他工作区的任务只解除关联。
func (s *WorkspaceService) Delete(ctx context.Context, caller identity.Caller, id uint) error {
	if _, err := s.requireCreator(ctx, caller, id, "Somente o dono do workspace pode apagar."); err != nil {
		return err
	}
	attachments, err := s.store.DeleteWorkspaceCascade(ctx, id)
	if err != nil {
		metrics.CascadeDeletesTotal.WithLabelValues("workspace", "error").Inc()
		s.logger.Error("workspace cascade failed", slog.Uint64("workspace_id", uint64(id)), slog.String("error", err.Error()))
		return apperr.Internal(err)
	}
	metrics.CascadeDeletesTotal.WithLabelValues("workspace", "ok").Inc()
	removeBlobs(ctx, s.blobs, s.logger, attachments)
	s.logger.Info("workspace deleted", slog.Uint64("workspace_id", uint64(id)), slog.String("by", caller.Email))
	return nil
}

// AddMember 添加成员，只有创建者可以操作。
func (s *WorkspaceService) AddMember(ctx context.Context, caller identity.Caller, id uint, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("Email é obrigatório")
	}
	if _, err := s.requireCreator(ctx, caller, id, "Apenas o criador pode adicionar membros"); err != nil {
		return err
	}
	if err := s.store.AddMember(ctx, id, email); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RemoveMember 移除成员，只有创建者可以操作，创建者本人不能被移除。
func (s *WorkspaceService) RemoveMember(ctx context.Context, caller identity.Caller, id uint, email string) error {
	ws, err := s.requireCreator(ctx, caller, id, "Apenas o criador pode remover membros")
	if err != nil {
		return err
	}
	if strings.EqualFold(ws.Creator, email) {
		return apperr.Validation("O criador não pode ser removido do workspace")
	}
	if err := s.store.RemoveMember(ctx, id, email); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *WorkspaceService) requireCreator(ctx context.Context, caller identity.Caller, id uint, deniedMsg string) (*model.Workspace, error) {
	ws, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "Workspace não encontrado")
	}
	if !strings.EqualFold(ws.Creator, caller.Email) {
		return nil, apperr.Authorization("%s", deniedMsg)
	}
	return ws, nil
}

func normalizeEmails(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		key := strings.ToLower(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// CategoryInput 是创建或修改分类的请求体。
type CategoryInput struct {
	Name        string `json:"nome"`
	Color       string `json:"cor"`
	WorkspaceID uint   `json:"id_workspace"`
}

// CategoryService 管理工作区分类。
type CategoryService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewCategoryService 创建分类服务。
func NewCategoryService(st *store.Store, logger *slog.Logger) *CategoryService {
	return &CategoryService{store: st, logger: logger}
}

// Create 在工作区内新建分类，需要是成员。名称重复返回 Conflict。
func (s *CategoryService) Create(ctx context.Context, caller identity.Caller, in CategoryInput) (*model.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("O nome da categoria é obrigatório")
	}
	if err := requireMember(ctx, s.store, in.WorkspaceID, caller.Email); err != nil {
		return nil, err
	}
	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = model.DefaultCategoryColor
	}
	c := &model.Category{Name: name, Color: color, WorkspaceID: in.WorkspaceID}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, categoryConflict(err)
	}
	return c, nil
}

// List 返回工作区的分类，按名称排序。
func (s *CategoryService) List(ctx context.Context, caller identity.Caller, workspaceID uint) ([]model.Category, error) {
	if err := requireMember(ctx, s.store, workspaceID, caller.Email); err != nil {
		return nil, err
	}
	list, err := s.store.ListCategories(ctx, workspaceID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// Update 修改分类名称或颜色。
func (s *CategoryService) Update(ctx context.Context, caller identity.Caller, id uint, in CategoryInput) (*model.Category, error) {
	c, err := s.memberCategory(ctx, caller, id, in.WorkspaceID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if name := strings.TrimSpace(in.Name); name != "" {
		updates["name"] = name
	}
	if color := strings.TrimSpace(in.Color); color != "" {
		updates["color"] = color
	}
	if len(updates) == 0 {
		return c, nil
	}
	if err := s.store.UpdateCategory(ctx, id, updates); err != nil {
		return nil, categoryConflict(err)
	}
	updated, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "Categoria não encontrada")
	}
	return updated, nil
}

// Delete 删除分类。仍有任务引用时返回 Conflict。
func (s *CategoryService) Delete(ctx context.Context, caller identity.Caller, id, workspaceID uint) error {
	if _, err := s.memberCategory(ctx, caller, id, workspaceID); err != nil {
		return err
	}
	inUse, err := s.store.CategoryInUse(ctx, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if inUse {
		return apperr.Conflict("Categoria está atrelada a uma tarefa e não pode ser deletada.")
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// memberCategory 读取分类并检查调用方是其工作区成员；workspaceID 非 0 时还要求匹配。
func (s *CategoryService) memberCategory(ctx context.Context, caller identity.Caller, id, workspaceID uint) (*model.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "Categoria não encontrada")
	}
	if workspaceID != 0 && c.WorkspaceID != workspaceID {
		return nil, apperr.NotFound("Categoria não encontrada neste workspace")
	}
	if err := requireMember(ctx, s.store, c.WorkspaceID, caller.Email); err != nil {
		return nil, err
	}
	return c, nil
}

func categoryConflict(err error) error {
	if apperr.IsUniqueViolation(err) {
		return &apperr.Error{Kind: apperr.KindConflict, Message: "Já existe uma categoria com este nome neste workspace", Cause: err}
	}
	return apperr.From(err)
}
