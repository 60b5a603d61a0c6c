package store

import (
	"context"
	"fmt"

	"noiton/internal/model"

	"gorm.io/gorm/clause"
)

// CreateWorkspace 在一个事务里创建工作区并写入初始成员。
func (s *Store) CreateWorkspace(ctx context.Context, ws *model.Workspace, emails []string) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.Create(ws).Error; err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		for _, email := range emails {
			if err := tx.AddMember(ctx, ws.ID, email); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetWorkspace 按 ID 查询工作区。
func (s *Store) GetWorkspace(ctx context.Context, id uint) (*model.Workspace, error) {
	var ws model.Workspace
	if err := s.db.WithContext(ctx).First(&ws, id).Error; err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return &ws, nil
}

// ListWorkspacesByEmail 返回邮箱所属的全部工作区，并填充成员邮箱。
func (s *Store) ListWorkspacesByEmail(ctx context.Context, email string) ([]model.Workspace, error) {
	list := []model.Workspace{}
	err := s.db.WithContext(ctx).
		Joins("JOIN usuario_workspace uw ON uw.workspace_id = workspaces.id").
		Where("uw.email = ?", email).
		Order("workspaces.id ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]uint, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	var members []model.WorkspaceMember
	if err := s.db.WithContext(ctx).Where("workspace_id IN ?", ids).Order("id ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	byWS := make(map[uint][]string, len(list))
	for _, m := range members {
		byWS[m.WorkspaceID] = append(byWS[m.WorkspaceID], m.Email)
	}
	for i := range list {
		list[i].Emails = byWS[list[i].ID]
	}
	return list, nil
}

// MemberEmails 返回工作区成员邮箱。
func (s *Store) MemberEmails(ctx context.Context, workspaceID uint) ([]string, error) {
	emails := []string{}
	if err := s.db.WithContext(ctx).Model(&model.WorkspaceMember{}).
		Where("workspace_id = ?", workspaceID).
		Order("id ASC").
		Pluck("email", &emails).Error; err != nil {
		return nil, fmt.Errorf("member emails: %w", err)
	}
	return emails, nil
}

// IsMember 判断邮箱是否为工作区成员。
func (s *Store) IsMember(ctx context.Context, workspaceID uint, email string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.WorkspaceMember{}).
		Where("workspace_id = ? AND email = ?", workspaceID, email).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return n > 0, nil
}

// AddMember 添加成员，已存在时忽略。
func (s *Store) AddMember(ctx context.Context, workspaceID uint, email string) error {
	m := model.WorkspaceMember{WorkspaceID: workspaceID, Email: email}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember 移除成员。
func (s *Store) RemoveMember(ctx context.Context, workspaceID uint, email string) error {
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND email = ?", workspaceID, email).
		Delete(&model.WorkspaceMember{}).Error; err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// UpdateWorkspace 稀疏更新工作区。
func (s *Store) UpdateWorkspace(ctx context.Context, id uint, updates map[string]interface{}) error {
	if err := s.db.WithContext(ctx).Model(&model.Workspace{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update workspace: %w", err)
	}
	return nil
}

// WorkspaceIDsByEmail 返回邮箱参与的工作区 ID。
func (s *Store) WorkspaceIDsByEmail(ctx context.Context, email string) ([]uint, error) {
	ids := []uint{}
	if err := s.db.WithContext(ctx).Model(&model.WorkspaceMember{}).
		Where("email = ?", email).
		Pluck("workspace_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("workspace ids: %w", err)
	}
	return ids, nil
}

// CreateCategory 新建分类。
func (s *Store) CreateCategory(ctx context.Context, c *model.Category) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// GetCategory 按 ID 查询分类。
func (s *Store) GetCategory(ctx context.Context, id uint) (*model.Category, error) {
	var c model.Category
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// ListCategories 按名称顺序返回一个或多个工作区下的分类。
func (s *Store) ListCategories(ctx context.Context, workspaceIDs ...uint) ([]model.Category, error) {
	list := []model.Category{}
	if len(workspaceIDs) == 0 {
		return list, nil
	}
	if err := s.db.WithContext(ctx).Where("workspace_id IN ?", workspaceIDs).Order("name ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return list, nil
}

// UpdateCategory 稀疏更新分类。
func (s *Store) UpdateCategory(ctx context.Context, id uint, updates map[string]interface{}) error {
	if err := s.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// CategoryInUse 判断是否有任务引用该分类。
func (s *Store) CategoryInUse(ctx context.Context, id uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.TaskCategory{}).Where("category_id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("category in use: %w", err)
	}
	return n > 0, nil
}

// DeleteCategory 删除分类。
func (s *Store) DeleteCategory(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&model.Category{}, id).Error; err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// MissingCategoryIDs 返回 ids 中不存在的分类 ID。
// 传入 workspaceIDs 时，不属于这些工作区的分类也算作不存在。
func (s *Store) MissingCategoryIDs(ctx context.Context, ids []uint, workspaceIDs ...uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found := []uint{}
	q := s.db.WithContext(ctx).Model(&model.Category{}).Where("id IN ?", ids)
	if len(workspaceIDs) > 0 {
		q = q.Where("workspace_id IN ?", workspaceIDs)
	}
	if err := q.Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("check categories: %w", err)
	}
	have := make(map[uint]struct{}, len(found))
	for _, id := range found {
		have[id] = struct{}{}
	}
	var missing []uint
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
