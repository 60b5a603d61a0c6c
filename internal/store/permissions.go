package store

import (
	"context"
	"errors"
	"fmt"

	"noiton/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantInfo 是任务授权列表中的一行。
type GrantInfo struct {
	UserID      uint   `json:"id_usuario"`
	Email       string `json:"email"`
	Name        string `json:"nome"`
	AccessLevel int    `json:"nivel_acesso"`
}

// FindGrantLevel 查询显式授权。没有授权时 found 为 false。
func (s *Store) FindGrantLevel(ctx context.Context, taskID, userID uint) (int, bool, error) {
	var grant model.TaskPermission
	err := s.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Take(&grant).Error
	switch {
	case err == nil:
		return grant.AccessLevel, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("find grant: %w", err)
	}
}

// IsTaskOwner 判断用户是否为任务拥有者。
func (s *Store) IsTaskOwner(ctx context.Context, taskID, userID uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND owner_id = ?", taskID, userID).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("check task owner: %w", err)
	}
	return n > 0, nil
}

// TaskExists 判断任务是否存在。
func (s *Store) TaskExists(ctx context.Context, taskID uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check task exists: %w", err)
	}
	return n > 0, nil
}

// UpsertGrant 写入授权；同一 (任务, 用户) 已存在时覆盖级别。
func (s *Store) UpsertGrant(ctx context.Context, taskID, userID uint, level int) error {
	grant := model.TaskPermission{TaskID: taskID, UserID: userID, AccessLevel: level}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_level"}),
	}).Create(&grant).Error
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

// DeleteGrant 删除授权，不存在时不报错。
func (s *Store) DeleteGrant(ctx context.Context, taskID, userID uint) error {
	if err := s.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Delete(&model.TaskPermission{}).Error; err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	return nil
}

// ListGrants 返回任务的授权列表，按级别升序、姓名升序。
func (s *Store) ListGrants(ctx context.Context, taskID uint) ([]GrantInfo, error) {
	rows := []GrantInfo{}
	err := s.db.WithContext(ctx).Table("tarefa_permissoes AS tp").
		Select("tp.user_id, u.email, u.name, tp.access_level").
		Joins("JOIN usuarios AS u ON u.id = tp.user_id").
		Where("tp.task_id = ?", taskID).
		Order("tp.access_level ASC, u.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return rows, nil
}
