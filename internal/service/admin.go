package service

import (
	"context"
	"log/slog"
	"time"

	"noiton/internal/pkg/apperr"
	"noiton/internal/store"
)

// TopUsersLimit 是仪表盘中活跃用户榜单的长度。
const TopUsersLimit = 5

// Dashboard 是管理后台首页的统计数据。
type Dashboard struct {
	Users struct {
		Total int64 `json:"total"`
	} `json:"usuarios"`
	Tasks struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"por_status"`
		Last30   int64            `json:"ultimos_30_dias"`
	} `json:"tarefas"`
	Reports struct {
		ByStatus map[string]int64 `json:"por_status"`
	} `json:"denuncias"`
	TopUsers []store.TopUser `json:"usuarios_mais_ativos"`
}

// AdminService 提供管理令牌可用的全局查询与强制删除。
type AdminService struct {
	store   *store.Store
	tasks   *TaskService
	reports *ReportService
	logger  *slog.Logger
	now     clock
}

// NewAdminService 创建管理服务。
func NewAdminService(st *store.Store, tasks *TaskService, reports *ReportService, logger *slog.Logger) *AdminService {
	return &AdminService{store: st, tasks: tasks, reports: reports, logger: logger, now: time.Now}
}

// Dashboard 汇总用户、任务与举报统计。
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	var err error
	if d.Users.Total, err = s.store.CountUsers(ctx); err != nil {
		return nil, apperr.Internal(err)
	}
	if d.Tasks.Total, err = s.store.CountTasks(ctx); err != nil {
		return nil, apperr.Internal(err)
	}
	if d.Tasks.ByStatus, err = s.store.TaskCountsByStatus(ctx); err != nil {
		return nil, apperr.Internal(err)
	}
	if d.Tasks.Last30, err = s.store.CountTasksSince(ctx, s.now().AddDate(0, 0, -30)); err != nil {
		return nil, apperr.Internal(err)
	}
	if d.Reports.ByStatus, err = s.store.ReportCountsByStatus(ctx); err != nil {
		return nil, apperr.Internal(err)
	}
	if d.TopUsers, err = s.store.TopUsersByTasks(ctx, TopUsersLimit); err != nil {
		return nil, apperr.Internal(err)
	}
	return &d, nil
}

// Tasks 返回系统内全部任务。
func (s *AdminService) Tasks(ctx context.Context) ([]store.AdminTaskRow, error) {
	rows, err := s.store.ListAllTasks(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rows, nil
}

// Users 返回全部用户及其任务统计，不含密码。
func (s *AdminService) Users(ctx context.Context) ([]store.UserStats, error) {
	rows, err := s.store.ListUsersWithStats(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rows, nil
}

// DeleteTask 强制删除任意任务，任务不存在返回 NotFound。
func (s *AdminService) DeleteTask(ctx context.Context, taskID uint) error {
	existed, err := s.tasks.Cascade(ctx, taskID)
	if err != nil {
		return err
	}
	if !existed {
		return apperr.NotFound("Tarefa não encontrada")
	}
	s.logger.Warn("task force-deleted by admin", slog.Uint64("task_id", uint64(taskID)))
	return nil
}

// Reports 返回举报列表。
func (s *AdminService) Reports(ctx context.Context, status string) ([]store.ReportView, error) {
	return s.reports.List(ctx, status)
}

// AdminNotes 是管理令牌操作未填写备注时的默认备注。
const AdminNotes = "Processado pelo administrador"

// Transition 以管理令牌身份处理举报（没有审核人 ID）。
func (s *AdminService) Transition(ctx context.Context, reportID uint, status, notes string) error {
	if notes == "" {
		notes = AdminNotes
	}
	_, err := s.reports.Transition(ctx, reportID, status, nil, notes)
	return err
}
