package store

import (
	"context"
	"fmt"

	"noiton/internal/model"
)

// CreateComment 新建评论。
func (s *Store) CreateComment(ctx context.Context, c *model.Comment) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// GetComment 按 ID 查询评论。
func (s *Store) GetComment(ctx context.Context, id uint) (*model.Comment, error) {
	var c model.Comment
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &c, nil
}

// ListComments 返回一个或多个任务下的评论，最新的在前。
func (s *Store) ListComments(ctx context.Context, taskIDs ...uint) ([]model.Comment, error) {
	list := []model.Comment{}
	if len(taskIDs) == 0 {
		return list, nil
	}
	if err := s.db.WithContext(ctx).Where("task_id IN ?", taskIDs).Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return list, nil
}

// UpdateCommentBody 修改评论内容。
func (s *Store) UpdateCommentBody(ctx context.Context, id uint, body string) error {
	if err := s.db.WithContext(ctx).Model(&model.Comment{}).Where("id = ?", id).Update("body", body).Error; err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

// DeleteComment 删除评论。
func (s *Store) DeleteComment(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&model.Comment{}, id).Error; err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
