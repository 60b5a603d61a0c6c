package service

import (
	"context"
	"log/slog"
	"strings"

	"noiton/internal/access"
	"noiton/internal/identity"
	"noiton/internal/model"
	"noiton/internal/pkg/apperr"
	"noiton/internal/store"
)

const commentAuthorOnly = "Só o autor do comentário pode editá-lo ou deletá-lo."

// CommentInput 是新建评论的请求体。
type CommentInput struct {
	TaskID uint   `json:"id_tarefa"`
	Body   string `json:"descricao"`
}

// CommentService 管理任务评论。
type CommentService struct {
	store  *store.Store
	access *access.Evaluator
	logger *slog.Logger
}

// NewCommentService 创建评论服务。
func NewCommentService(st *store.Store, ev *access.Evaluator, logger *slog.Logger) *CommentService {
	return &CommentService{store: st, access: ev, logger: logger}
}

// Create 以调用方身份发表评论，需要任务查看权限。
func (s *CommentService) Create(ctx context.Context, caller identity.Caller, in CommentInput) (*model.Comment, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, apperr.Validation("O comentário não pode ser vazio")
	}
	if err := s.access.Require(ctx, in.TaskID, caller.UserID, access.ActionView, ""); err != nil {
		return nil, err
	}
	c := &model.Comment{TaskID: in.TaskID, AuthorEmail: caller.Email, Body: body}
	if err := s.store.CreateComment(ctx, c); err != nil {
		return nil, apperr.Internal(err)
	}
	return c, nil
}

// ListByTask 返回任务的评论，最新的在前。
func (s *CommentService) ListByTask(ctx context.Context, caller identity.Caller, taskID uint) ([]model.Comment, error) {
	if err := s.access.Require(ctx, taskID, caller.UserID, access.ActionView, ""); err != nil {
		return nil, err
	}
	list, err := s.store.ListComments(ctx, taskID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// Update 修改评论内容，只有作者可以修改。
func (s *CommentService) Update(ctx context.Context, caller identity.Caller, id uint, body string) (*model.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("O comentário não pode ser vazio")
	}
	c, err := s.authored(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateCommentBody(ctx, id, body); err != nil {
		return nil, apperr.Internal(err)
	}
	c.Body = body
	return c, nil
}

// Delete 删除评论，只有作者可以删除。
func (s *CommentService) Delete(ctx context.Context, caller identity.Caller, id uint) error {
	if _, err := s.authored(ctx, caller, id); err != nil {
		return err
	}
	if err := s.store.DeleteComment(ctx, id); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *CommentService) authored(ctx context.Context, caller identity.Caller, id uint) (*model.Comment, error) {
	c, err := s.store.GetComment(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "Comentário não encontrado")
	}
	if !strings.EqualFold(c.AuthorEmail, caller.Email) {
		return nil, apperr.Authorization(commentAuthorOnly)
	}
	return c, nil
}
