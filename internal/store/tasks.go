package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"noiton/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskFilter 是工作区任务列表的过滤条件，零值字段不参与过滤。
type TaskFilter struct {
	WorkspaceID  uint
	Title        string
	CategoryName string
	OwnerID      uint
	CreatedFrom  *time.Time
	DueUntil     *time.Time
	Priority     string
	Status       string
	Keywords     string
	IDs          []uint // 非空时只返回这些任务（来自全文检索）
}

// AccessibleTask 是用户可访问的任务及其计算出的访问级别。
type AccessibleTask struct {
	model.Task
	AccessLevel int  `json:"nivel_acesso"`
	CanEdit     bool `json:"pode_editar"`
	CanDelete   bool `json:"pode_apagar"`
}

// AdminTaskRow 是管理后台的任务列表行。
type AdminTaskRow struct {
	ID          uint       `json:"id_tarefa"`
	Title       string     `json:"titulo"`
	Status      string     `json:"status"`
	Priority    string     `json:"prioridade"`
	DueDate     *time.Time `json:"data_fim"`
	CreatedAt   time.Time  `json:"data_criacao"`
	OwnerID     uint       `json:"id_usuario"`
	OwnerEmail  string     `json:"email_criador"`
	OwnerName   string     `json:"nome_criador"`
	ReportCount int64      `json:"total_denuncias"`
}

// TopUser 是按任务数排序的用户。
type TopUser struct {
	ID         uint   `json:"id_usuario"`
	Email      string `json:"email"`
	Name       string `json:"nome"`
	TotalTasks int64  `json:"total_tarefas"`
}

// CreateTask 插入任务行。(标题, 工作区) 冲突时返回唯一约束错误。
func (s *Store) CreateTask(ctx context.Context, task *model.Task) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask 按 ID 查询任务并填充分类。
func (s *Store) GetTask(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	tasks := []model.Task{task}
	if err := s.attachCategories(ctx, tasks); err != nil {
		return nil, err
	}
	return &tasks[0], nil
}

// GetTaskForUpdate 在事务中读取任务当前状态。
func (s *Store) GetTaskForUpdate(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	q := s.db.WithContext(ctx)
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&task, id).Error; err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// UpdateTask 稀疏更新任务字段。
func (s *Store) UpdateTask(ctx context.Context, id uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// LinkTaskWorkspace 关联任务与工作区，已存在时忽略。
func (s *Store) LinkTaskWorkspace(ctx context.Context, taskID, workspaceID uint) error {
	link := model.TaskWorkspace{TaskID: taskID, WorkspaceID: workspaceID}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		return fmt.Errorf("link task workspace: %w", err)
	}
	return nil
}

// UnlinkTaskWorkspace 解除任务与工作区的关联。
func (s *Store) UnlinkTaskWorkspace(ctx context.Context, taskID, workspaceID uint) error {
	if err := s.db.WithContext(ctx).
		Where("task_id = ? AND workspace_id = ?", taskID, workspaceID).
		Delete(&model.TaskWorkspace{}).Error; err != nil {
		return fmt.Errorf("unlink task workspace: %w", err)
	}
	return nil
}

// TaskWorkspaceIDs 返回任务关联的工作区。
func (s *Store) TaskWorkspaceIDs(ctx context.Context, taskID uint) ([]uint, error) {
	ids := []uint{}
	if err := s.db.WithContext(ctx).Model(&model.TaskWorkspace{}).
		Where("task_id = ?", taskID).
		Pluck("workspace_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("task workspaces: %w", err)
	}
	return ids, nil
}

// LinkTaskCategories 关联分类，已存在的关联会被跳过。
func (s *Store) LinkTaskCategories(ctx context.Context, taskID uint, categoryIDs []uint) error {
	for _, cid := range categoryIDs {
		link := model.TaskCategory{TaskID: taskID, CategoryID: cid}
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return fmt.Errorf("link category %d: %w", cid, err)
		}
	}
	return nil
}

// UnlinkTaskCategories 删除分类关联；categoryID 为 0 时删除全部。
func (s *Store) UnlinkTaskCategories(ctx context.Context, taskID, categoryID uint) error {
	q := s.db.WithContext(ctx).Where("task_id = ?", taskID)
	if categoryID != 0 {
		q = q.Where("category_id = ?", categoryID)
	}
	if err := q.Delete(&model.TaskCategory{}).Error; err != nil {
		return fmt.Errorf("unlink categories: %w", err)
	}
	return nil
}

// TaskCategories 返回任务关联的分类详情。
func (s *Store) TaskCategories(ctx context.Context, taskID uint) ([]model.Category, error) {
	list := []model.Category{}
	err := s.db.WithContext(ctx).
		Joins("JOIN tarefa_categoria tc ON tc.category_id = categorias.id").
		Where("tc.task_id = ?", taskID).
		Order("categorias.name ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("task categories: %w", err)
	}
	return list, nil
}

// attachCategories 批量填充任务的分类 ID。
func (s *Store) attachCategories(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]uint, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
		tasks[i].Categories = []uint{}
	}
	var links []model.TaskCategory
	if err := s.db.WithContext(ctx).Where("task_id IN ?", ids).Order("category_id ASC").Find(&links).Error; err != nil {
		return fmt.Errorf("load task categories: %w", err)
	}
	byTask := make(map[uint][]uint, len(tasks))
	for _, l := range links {
		byTask[l.TaskID] = append(byTask[l.TaskID], l.CategoryID)
	}
	for i := range tasks {
		if cats, ok := byTask[tasks[i].ID]; ok {
			tasks[i].Categories = cats
		}
	}
	return nil
}

func (s *Store) workspaceTasks(ctx context.Context, workspaceID uint) *gorm.DB {
	return s.db.WithContext(ctx).Model(&model.Task{}).
		Joins("JOIN tarefa_workspace tw ON tw.task_id = tarefas.id").
		Where("tw.workspace_id = ?", workspaceID)
}

// ListTasksByWorkspace 返回工作区内的任务，最新创建的在前。
func (s *Store) ListTasksByWorkspace(ctx context.Context, workspaceID uint) ([]model.Task, error) {
	return s.FilterTasks(ctx, TaskFilter{WorkspaceID: workspaceID})
}

// GetTaskInWorkspace 查询工作区内的单个任务。
func (s *Store) GetTaskInWorkspace(ctx context.Context, taskID, workspaceID uint) (*model.Task, error) {
	var task model.Task
	if err := s.workspaceTasks(ctx, workspaceID).Where("tarefas.id = ?", taskID).First(&task).Error; err != nil {
		return nil, fmt.Errorf("get task in workspace: %w", err)
	}
	tasks := []model.Task{task}
	if err := s.attachCategories(ctx, tasks); err != nil {
		return nil, err
	}
	return &tasks[0], nil
}

// FilterTasks 按条件查询工作区任务，按创建时间倒序。文本条件大小写不敏感。
func (s *Store) FilterTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	q := s.workspaceTasks(ctx, f.WorkspaceID)
	if f.Title != "" {
		q = q.Where("LOWER(tarefas.title) LIKE ?", likePattern(f.Title))
	}
	if f.CategoryName != "" {
		q = q.Where(`EXISTS (SELECT 1 FROM tarefa_categoria tc JOIN categorias c ON c.id = tc.category_id
			WHERE tc.task_id = tarefas.id AND LOWER(c.name) LIKE ?)`, likePattern(f.CategoryName))
	}
	if f.OwnerID != 0 {
		q = q.Where("tarefas.owner_id = ?", f.OwnerID)
	}
	if f.CreatedFrom != nil {
		q = q.Where("tarefas.created_at >= ?", *f.CreatedFrom)
	}
	if f.DueUntil != nil {
		q = q.Where("tarefas.due_date <= ?", *f.DueUntil)
	}
	if f.Priority != "" {
		q = q.Where("tarefas.priority = ?", f.Priority)
	}
	if f.Status != "" {
		q = q.Where("tarefas.status = ?", f.Status)
	}
	if f.Keywords != "" {
		p := likePattern(f.Keywords)
		q = q.Where("(LOWER(tarefas.title) LIKE ? OR LOWER(tarefas.description) LIKE ?)", p, p)
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return []model.Task{}, nil
		}
		q = q.Where("tarefas.id IN ?", f.IDs)
	}

	tasks := []model.Task{}
	if err := q.Select("tarefas.*").Order("tarefas.created_at DESC, tarefas.id DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("filter tasks: %w", err)
	}
	if err := s.attachCategories(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func likePattern(v string) string {
	return "%" + strings.ToLower(strings.TrimSpace(v)) + "%"
}

// ListAccessibleTasks 返回用户拥有或被授权的任务。
//
// 访问级别与 access.Evaluator 一致：存在授权时以授权为准，否则拥有者为 0。
func (s *Store) ListAccessibleTasks(ctx context.Context, userID uint) ([]AccessibleTask, error) {
	tasks := []model.Task{}
	err := s.db.WithContext(ctx).
		Where("owner_id = ? OR id IN (?)", userID,
			s.db.Model(&model.TaskPermission{}).Select("task_id").Where("user_id = ?", userID)).
		Order("created_at DESC, id DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list accessible tasks: %w", err)
	}
	if err := s.attachCategories(ctx, tasks); err != nil {
		return nil, err
	}

	var grants []model.TaskPermission
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}
	levels := make(map[uint]int, len(grants))
	for _, g := range grants {
		levels[g.TaskID] = g.AccessLevel
	}

	out := make([]AccessibleTask, 0, len(tasks))
	for _, t := range tasks {
		level, ok := levels[t.ID]
		if !ok {
			level = 0
		}
		out = append(out, AccessibleTask{
			Task:        t,
			AccessLevel: level,
			CanEdit:     level <= 1,
			CanDelete:   level == 0,
		})
	}
	return out, nil
}

// ListTasksByIDs 按 ID 批量查询任务。
func (s *Store) ListTasksByIDs(ctx context.Context, ids []uint) ([]model.Task, error) {
	tasks := []model.Task{}
	if len(ids) == 0 {
		return tasks, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at DESC, id DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks by ids: %w", err)
	}
	if err := s.attachCategories(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// TaskIDsInWorkspaces 返回关联到任一工作区的任务 ID。
func (s *Store) TaskIDsInWorkspaces(ctx context.Context, workspaceIDs []uint) ([]uint, error) {
	ids := []uint{}
	if len(workspaceIDs) == 0 {
		return ids, nil
	}
	if err := s.db.WithContext(ctx).Model(&model.TaskWorkspace{}).
		Distinct("task_id").
		Where("workspace_id IN ?", workspaceIDs).
		Pluck("task_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("task ids in workspaces: %w", err)
	}
	return ids, nil
}

// MarkOverdue 把已过截止时间且未完成的任务标记为 atrasada。
func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("status IN ?", []string{model.StatusTodo, model.StatusInProgress}).
		Update("status", model.StatusOverdue)
	if res.Error != nil {
		return 0, fmt.Errorf("mark overdue: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DueRecurringTasks 返回已完成、周期性且截止时间已过的任务。
func (s *Store) DueRecurringTasks(ctx context.Context, now time.Time, limit int) ([]model.Task, error) {
	tasks := []model.Task{}
	q := s.db.WithContext(ctx).
		Where("recurring = ? AND status = ?", true, model.StatusDone).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Order("due_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("due recurring tasks: %w", err)
	}
	return tasks, nil
}

// ResetRecurringTask 把周期任务重置为 a_fazer 并推进截止时间。
//
// 只有状态仍为 concluido 时才会更新，返回是否实际更新。
func (s *Store) ResetRecurringTask(ctx context.Context, id uint, nextDue time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status = ?", id, model.StatusDone).
		Updates(map[string]interface{}{
			"status":   model.StatusTodo,
			"done":     false,
			"due_date": nextDue,
		})
	if res.Error != nil {
		return false, fmt.Errorf("reset recurring task: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CountTasks 返回任务总数。
func (s *Store) CountTasks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Task{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// CountTasksSince 返回指定时间之后创建的任务数。
func (s *Store) CountTasksSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Task{}).Where("created_at >= ?", since).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count recent tasks: %w", err)
	}
	return n, nil
}

// TaskCountsByStatus 按状态统计任务数。
func (s *Store) TaskCountsByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := s.db.WithContext(ctx).Model(&model.Task{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	out := map[string]int64{
		model.StatusTodo:       0,
		model.StatusInProgress: 0,
		model.StatusDone:       0,
		model.StatusOverdue:    0,
	}
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

// TopUsersByTasks 返回拥有任务最多的用户。
func (s *Store) TopUsersByTasks(ctx context.Context, limit int) ([]TopUser, error) {
	rows := []TopUser{}
	err := s.db.WithContext(ctx).Table("usuarios AS u").
		Select("u.id, u.email, u.name, COUNT(t.id) AS total_tasks").
		Joins("JOIN tarefas AS t ON t.owner_id = u.id").
		Group("u.id, u.email, u.name").
		Order("total_tasks DESC, u.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	return rows, nil
}

// ListAllTasks 返回全部任务及拥有者信息与举报数。
func (s *Store) ListAllTasks(ctx context.Context) ([]AdminTaskRow, error) {
	rows := []AdminTaskRow{}
	err := s.db.WithContext(ctx).Table("tarefas AS t").
		Select(`t.id, t.title, t.status, t.priority, t.due_date, t.created_at, t.owner_id,
			u.email AS owner_email, u.name AS owner_name,
			(SELECT COUNT(*) FROM denuncias d WHERE d.task_id = t.id) AS report_count`).
		Joins("LEFT JOIN usuarios AS u ON u.id = t.owner_id").
		Order("t.created_at DESC, t.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list all tasks: %w", err)
	}
	return rows, nil
}
