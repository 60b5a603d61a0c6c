package store

import (
	"context"
	"errors"
	"fmt"

	"noiton/internal/model"

	"gorm.io/gorm"
)

// UserStats 是管理后台的用户列表行。
type UserStats struct {
	ID             uint    `json:"id_usuario"`
	Email          string  `json:"email"`
	Name           string  `json:"nome"`
	Phone          *string `json:"telefone"`
	Points         float64 `json:"pontos"`
	Role           string  `json:"role"`
	TotalTasks     int64   `json:"total_tarefas"`
	CompletedTasks int64   `json:"tarefas_concluidas"`
}

// CreateUser 新建用户。
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser 按 ID 查询用户。
func (s *Store) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// FindUserByEmail 按邮箱查询用户，不存在时返回 (nil, nil)。
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find user by email: %w", err)
	}
}

// UpdateUser 稀疏更新用户字段。
func (s *Store) UpdateUser(ctx context.Context, id uint, updates map[string]interface{}) error {
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// AddPoints 给用户累加积分。
func (s *Store) AddPoints(ctx context.Context, userID uint, points float64) error {
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("points", gorm.Expr("points + ?", points)).Error; err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	return nil
}

// CountUsers 返回用户总数。
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// ListUsersWithStats 返回所有用户及其任务统计。
func (s *Store) ListUsersWithStats(ctx context.Context) ([]UserStats, error) {
	rows := []UserStats{}
	err := s.db.WithContext(ctx).Table("usuarios AS u").
		Select(`u.id, u.email, u.name, u.phone, u.points, u.role,
			COUNT(t.id) AS total_tasks,
			COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0) AS completed_tasks`, model.StatusDone).
		Joins("LEFT JOIN tarefas AS t ON t.owner_id = u.id").
		Group("u.id, u.email, u.name, u.phone, u.points, u.role").
		Order("u.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return rows, nil
}
