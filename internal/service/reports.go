package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"noiton/internal/model"
	"noiton/internal/pkg/apperr"
	"noiton/internal/pkg/metrics"
	"noiton/internal/store"
)

// MinReasonLength 是举报理由去除首尾空白后的最少字符数。
const MinReasonLength = 10

// ReportStats 是举报统计。
type ReportStats struct {
	ByStatus map[string]int64 `json:"por_status"`
	Total    int64            `json:"total"`
}

// ReportService 实现举报的审核流程：pendente → analisada | rejeitada | aprovada。
type ReportService struct {
	store    *store.Store
	tasks    *TaskService
	notifier ReportNotifier
	logger   *slog.Logger
	now      clock
}

// NewReportService 创建举报服务。notifier 可以为 nil。
func NewReportService(st *store.Store, tasks *TaskService, notifier ReportNotifier, logger *slog.Logger) *ReportService {
	return &ReportService{store: st, tasks: tasks, notifier: notifier, logger: logger, now: time.Now}
}

// Submit 提交举报。
//
// 参数:
//   - reporterID: 举报人
//   - taskID: 被举报的任务
//   - reason: 理由，去除首尾空白后至少 10 个字符
//
// 返回值:
//   - *model.Report: 新建的举报（状态 pendente）
//   - error: 理由过短返回 Validation，任务不存在返回 NotFound，重复举报返回 Conflict
func (s *ReportService) Submit(ctx context.Context, reporterID, taskID uint, reason string) (*model.Report, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < MinReasonLength {
		return nil, apperr.Validation("O motivo da denúncia deve ter pelo menos %d caracteres", MinReasonLength)
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, wrapErr(err, "Tarefa não encontrada")
	}
	r := &model.Report{TaskID: taskID, ReporterID: reporterID, Reason: reason, Status: model.ReportPending}
	if err := s.store.CreateReport(ctx, r); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, &apperr.Error{Kind: apperr.KindConflict, Message: "Você já denunciou esta tarefa", Cause: err}
		}
		return nil, apperr.Internal(err)
	}
	metrics.ReportTransitionsTotal.WithLabelValues(model.ReportPending).Inc()
	if s.notifier != nil {
		s.notifier.ReportSubmitted(*r, *task)
	}
	s.logger.Info("report submitted", slog.Uint64("report_id", uint64(r.ID)), slog.Uint64("task_id", uint64(taskID)))
	return r, nil
}

// Transition 把 pendente 的举报改为 analisada、rejeitada 或 aprovada。
//
// 终态不能再次变更（Conflict），唯一例外是对已 aprovada 的举报再次批准：
// 此时重新执行任务级联删除并成功返回。批准会删除被举报的任务，但保留该举报作为审核记录。
// moderatorID 为 nil 表示由管理令牌操作。
func (s *ReportService) Transition(ctx context.Context, reportID uint, status string, moderatorID *uint, notes string) (*model.Report, error) {
	if status != model.ReportReviewed && status != model.ReportRejected && status != model.ReportApproved {
		return nil, apperr.Validation("Status inválido. Use: analisada, rejeitada ou aprovada")
	}
	r, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, wrapErr(err, "Denúncia não encontrada")
	}

	if r.Status == model.ReportPending {
		applied, err := s.store.TransitionPendingReport(ctx, reportID, status, moderatorID, strings.TrimSpace(notes), s.now())
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if applied {
			metrics.ReportTransitionsTotal.WithLabelValues(status).Inc()
		}
		if r, err = s.store.GetReport(ctx, reportID); err != nil {
			return nil, wrapErr(err, "Denúncia não encontrada")
		}
		if !applied && r.Status != status {
			return nil, alreadyReviewed(r.Status)
		}
	} else if !(r.Status == model.ReportApproved && status == model.ReportApproved) {
		return nil, alreadyReviewed(r.Status)
	}

	title := ""
	if task, err := s.store.GetTask(ctx, r.TaskID); err == nil {
		title = task.Title
	}
	if status == model.ReportApproved {
		if err := s.removeReportedTask(ctx, r); err != nil {
			return nil, err
		}
	}
	if s.notifier != nil && r.Status == status {
		if reporter, err := s.store.GetUser(ctx, r.ReporterID); err == nil {
			s.notifier.ReportDecided(*r, *reporter, title)
		}
	}
	s.logger.Info("report transitioned",
		slog.Uint64("report_id", uint64(r.ID)),
		slog.String("status", status),
		slog.Bool("by_admin", moderatorID == nil))
	return r, nil
}

// Approve 批准举报并删除被举报的任务。
func (s *ReportService) Approve(ctx context.Context, reportID uint, moderatorID *uint, notes string) (*model.Report, error) {
	return s.Transition(ctx, reportID, model.ReportApproved, moderatorID, notes)
}

// Reject 驳回举报，没有其他副作用。
func (s *ReportService) Reject(ctx context.Context, reportID uint, moderatorID *uint, notes string) (*model.Report, error) {
	return s.Transition(ctx, reportID, model.ReportRejected, moderatorID, notes)
}

// List 返回举报列表，status 为空时返回全部。
func (s *ReportService) List(ctx context.Context, status string) ([]store.ReportView, error) {
	if status != "" && !model.ValidReportStatus(status) {
		return nil, apperr.Validation("Status inválido: %s", status)
	}
	list, err := s.store.ListReports(ctx, status, 0)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// ListByTask 返回某个任务的举报。
func (s *ReportService) ListByTask(ctx context.Context, taskID uint) ([]store.ReportView, error) {
	list, err := s.store.ListReports(ctx, "", taskID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// Get 返回单个举报。
func (s *ReportService) Get(ctx context.Context, id uint) (*model.Report, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "Denúncia não encontrada")
	}
	return r, nil
}

// Stats 按状态统计举报，四种状态都有值。
func (s *ReportService) Stats(ctx context.Context) (*ReportStats, error) {
	counts, err := s.store.ReportCountsByStatus(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return &ReportStats{ByStatus: counts, Total: total}, nil
}

func (s *ReportService) removeReportedTask(ctx context.Context, r *model.Report) error {
	existed, attachments, err := s.store.DeleteTaskCascadeKeepingReport(ctx, r.TaskID, r.ID)
	if err != nil {
		metrics.CascadeDeletesTotal.WithLabelValues("tarefa", "error").Inc()
		s.logger.Error("approved report cascade failed",
			slog.Uint64("report_id", uint64(r.ID)),
			slog.Uint64("task_id", uint64(r.TaskID)),
			slog.String("error", err.Error()))
		return apperr.Internal(err)
	}
	if !existed {
		metrics.CascadeDeletesTotal.WithLabelValues("tarefa", "missing").Inc()
		return nil
	}
	metrics.CascadeDeletesTotal.WithLabelValues("tarefa", "ok").Inc()
	removeBlobs(ctx, s.tasks.blobs, s.logger, attachments)
	if s.tasks.index != nil {
		s.tasks.index.RemoveTask(r.TaskID)
	}
	return nil
}

func alreadyReviewed(current string) error {
	return apperr.Conflict("Denúncia já foi analisada (status atual: %s)", current).
		WithDetails(map[string]string{"status": current})
}
