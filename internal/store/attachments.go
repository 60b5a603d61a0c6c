package store

import (
	"context"
	"errors"
	"fmt"

	"noiton/internal/model"

	"gorm.io/gorm"
)

// FindAttachmentByKind 查询任务某类附件，不存在时返回 (nil, nil)。
func (s *Store) FindAttachmentByKind(ctx context.Context, taskID uint, kind string) (*model.Attachment, error) {
	var a model.Attachment
	err := s.db.WithContext(ctx).Where("task_id = ? AND kind = ?", taskID, kind).Take(&a).Error
	switch {
	case err == nil:
		return &a, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find attachment: %w", err)
	}
}

// SaveAttachment 新建或整体更新附件行。
func (s *Store) SaveAttachment(ctx context.Context, a *model.Attachment) error {
	if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("save attachment: %w", err)
	}
	return nil
}

// GetAttachment 按 ID 查询附件。
func (s *Store) GetAttachment(ctx context.Context, id uint) (*model.Attachment, error) {
	var a model.Attachment
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return &a, nil
}

// ListAttachments 返回一个或多个任务的附件。
func (s *Store) ListAttachments(ctx context.Context, taskIDs ...uint) ([]model.Attachment, error) {
	list := []model.Attachment{}
	if len(taskIDs) == 0 {
		return list, nil
	}
	if err := s.db.WithContext(ctx).Where("task_id IN ?", taskIDs).Order("kind ASC, id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return list, nil
}

// DeleteAttachment 删除附件行。
func (s *Store) DeleteAttachment(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&model.Attachment{}, id).Error; err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}
