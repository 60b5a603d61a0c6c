package store

import (
	"context"
	"fmt"
	"time"

	"noiton/internal/model"
)

// ReportView 是带任务标题与举报人信息的举报行。
type ReportView struct {
	model.Report
	TaskTitle     string `json:"titulo_tarefa"`
	ReporterEmail string `json:"email_denunciante"`
	ReporterName  string `json:"nome_denunciante"`
}

// CreateReport 新建举报。(任务, 举报人) 重复时返回唯一约束错误。
func (s *Store) CreateReport(ctx context.Context, r *model.Report) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// GetReport 按 ID 查询举报。
func (s *Store) GetReport(ctx context.Context, id uint) (*model.Report, error) {
	var r model.Report
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &r, nil
}

// ListReports 返回举报列表；status 非空时按状态过滤，taskID 非 0 时按任务过滤。
func (s *Store) ListReports(ctx context.Context, status string, taskID uint) ([]ReportView, error) {
	rows := []ReportView{}
	q := s.db.WithContext(ctx).Table("denuncias").
		Select("denuncias.*, t.title AS task_title, u.email AS reporter_email, u.name AS reporter_name").
		Joins("LEFT JOIN tarefas AS t ON t.id = denuncias.task_id").
		Joins("LEFT JOIN usuarios AS u ON u.id = denuncias.reporter_id")
	if status != "" {
		q = q.Where("denuncias.status = ?", status)
	}
	if taskID != 0 {
		q = q.Where("denuncias.task_id = ?", taskID)
	}
	if err := q.Order("denuncias.created_at DESC, denuncias.id DESC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return rows, nil
}

// ReportCountsByStatus 按状态统计举报数，未出现的状态为 0。
func (s *Store) ReportCountsByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := s.db.WithContext(ctx).Model(&model.Report{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	out := make(map[string]int64, len(model.ReportStatuses))
	for _, st := range model.ReportStatuses {
		out[st] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

// TransitionPendingReport 只在举报仍为 pendente 时更新状态，返回是否更新。
func (s *Store) TransitionPendingReport(ctx context.Context, id uint, status string, moderatorID *uint, notes string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Report{}).
		Where("id = ? AND status = ?", id, model.ReportPending).
		Updates(map[string]interface{}{
			"status":          status,
			"reviewed_at":     at,
			"moderator_id":    moderatorID,
			"moderator_notes": notes,
		})
	if res.Error != nil {
		return false, fmt.Errorf("transition report: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
