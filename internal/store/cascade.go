package store

import (
	"context"
	"fmt"

	"noiton/internal/model"

	"gorm.io/gorm"
)

// DeleteTaskCascade 在单个事务中删除任务及其全部依赖行。
//
// 删除顺序固定为：评论 → 举报 → 授权 → 分类关联 → 工作区关联 → 附件 → 任务。
// 任意一步失败都会回滚整个事务。
//
// 返回值:
//
//	bool: 任务删除前是否存在
//	[]model.Attachment: 被删除的附件记录，调用方在提交后清理文件
//	error: 事务失败返回错误
func (s *Store) DeleteTaskCascade(ctx context.Context, taskID uint) (bool, []model.Attachment, error) {
	return s.deleteTaskCascade(ctx, taskID, 0)
}

// DeleteTaskCascadeKeepingReport 与 DeleteTaskCascade 相同，但保留 reportID 对应的举报作为审核记录。
func (s *Store) DeleteTaskCascadeKeepingReport(ctx context.Context, taskID, reportID uint) (bool, []model.Attachment, error) {
	return s.deleteTaskCascade(ctx, taskID, reportID)
}

func (s *Store) deleteTaskCascade(ctx context.Context, taskID, keepReportID uint) (bool, []model.Attachment, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return false, nil, fmt.Errorf("begin task cascade: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	existed, attachments, err := deleteTaskRows(tx, taskID, keepReportID)
	if err != nil {
		tx.Rollback()
		return false, nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return false, nil, fmt.Errorf("commit task cascade: %w", err)
	}
	return existed, attachments, nil
}

func deleteTaskRows(tx *gorm.DB, taskID, keepReportID uint) (bool, []model.Attachment, error) {
	var attachments []model.Attachment
	if err := tx.Where("task_id = ?", taskID).Find(&attachments).Error; err != nil {
		return false, nil, fmt.Errorf("load attachments: %w", err)
	}

	reports := tx.Where("task_id = ?", taskID)
	if keepReportID != 0 {
		reports = reports.Where("id <> ?", keepReportID)
	}
	steps := []struct {
		name  string
		model interface{}
		scope *gorm.DB
	}{
		{"comments", &model.Comment{}, tx.Where("task_id = ?", taskID)},
		{"reports", &model.Report{}, reports},
		{"grants", &model.TaskPermission{}, tx.Where("task_id = ?", taskID)},
		{"category links", &model.TaskCategory{}, tx.Where("task_id = ?", taskID)},
		{"workspace links", &model.TaskWorkspace{}, tx.Where("task_id = ?", taskID)},
		{"attachments", &model.Attachment{}, tx.Where("task_id = ?", taskID)},
	}
	for _, step := range steps {
		if err := step.scope.Delete(step.model).Error; err != nil {
			return false, nil, fmt.Errorf("delete %s: %w", step.name, err)
		}
	}

	res := tx.Where("id = ?", taskID).Delete(&model.Task{})
	if res.Error != nil {
		return false, nil, fmt.Errorf("delete task: %w", res.Error)
	}
	return res.RowsAffected > 0, attachments, nil
}

// DeleteWorkspaceCascade 在单个事务中删除工作区。
//
// 只属于该工作区的任务会被级联删除，同时关联到其他工作区的任务只解除关联。
// 随后删除分类（及其任务关联）、成员关系和工作区本身。
func (s *Store) DeleteWorkspaceCascade(ctx context.Context, workspaceID uint) ([]model.Attachment, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin workspace cascade: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var taskIDs []uint
	if err := tx.Model(&model.TaskWorkspace{}).Where("workspace_id = ?", workspaceID).Pluck("task_id", &taskIDs).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("load workspace tasks: %w", err)
	}

	var shared []uint
	if len(taskIDs) > 0 {
		if err := tx.Model(&model.TaskWorkspace{}).
			Distinct("task_id").
			Where("task_id IN ? AND workspace_id <> ?", taskIDs, workspaceID).
			Pluck("task_id", &shared).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("load shared tasks: %w", err)
		}
	}
	sharedSet := make(map[uint]struct{}, len(shared))
	for _, id := range shared {
		sharedSet[id] = struct{}{}
	}

	var removed []model.Attachment
	for _, id := range taskIDs {
		if _, ok := sharedSet[id]; ok {
			continue
		}
		_, attachments, err := deleteTaskRows(tx, id, 0)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		removed = append(removed, attachments...)
	}

	if err := tx.Where("workspace_id = ?", workspaceID).Delete(&model.TaskWorkspace{}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("delete workspace links: %w", err)
	}
	if err := tx.Where("category_id IN (?)",
		tx.Model(&model.Category{}).Select("id").Where("workspace_id = ?", workspaceID)).
		Delete(&model.TaskCategory{}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("delete category links: %w", err)
	}
	if err := tx.Where("workspace_id = ?", workspaceID).Delete(&model.Category{}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("delete categories: %w", err)
	}
	if err := tx.Where("workspace_id = ?", workspaceID).Delete(&model.WorkspaceMember{}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("delete members: %w", err)
	}
	if err := tx.Where("id = ?", workspaceID).Delete(&model.Workspace{}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("delete workspace: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit workspace cascade: %w", err)
	}
	return removed, nil
}
