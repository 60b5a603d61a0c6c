// Package scheduler 运行任务相关的定时后台作业：逾期扫描与周期任务重置。
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"noiton/internal/config"
	"noiton/internal/model"
	"noiton/internal/pkg/metrics"
	"noiton/internal/service"
	"noiton/internal/store"

	"github.com/robfig/cron/v3"
)

const (
	jobOverdue    = "overdue"
	jobRecurrence = "recurrence"

	// runTimeout 限制单次作业的执行时间。
	runTimeout = 2 * time.Minute
)

// Scheduler 使用 cron 表达式周期性地执行后台作业。
type Scheduler struct {
	store  *store.Store
	index  service.TaskIndex
	logger *slog.Logger
	cfg    config.SchedulerConfig
	cron   *cron.Cron
	now    func() time.Time
}

// New 创建调度器。
//
// 参数:
//
//	st: 数据访问层
//	index: 检索索引，可以为 nil
//	cfg: 调度配置（时区、cron 表达式、单次重置上限）
//
// 返回值:
//
//	*Scheduler: 调度器实例
//	error: 时区或 cron 表达式无效
func New(st *store.Store, index service.TaskIndex, cfg config.SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load scheduler timezone: %w", err)
		}
		loc = l
	}

	s := &Scheduler{
		store:  st,
		index:  index,
		logger: logger,
		cfg:    cfg,
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{logger}))),
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(cfg.OverdueSpec, func() { s.run(jobOverdue, s.MarkOverdue) }); err != nil {
		return nil, fmt.Errorf("schedule overdue sweep %q: %w", cfg.OverdueSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.RecurrenceSpec, func() { s.run(jobRecurrence, s.RollRecurring) }); err != nil {
		return nil, fmt.Errorf("schedule recurrence rollover %q: %w", cfg.RecurrenceSpec, err)
	}
	return s, nil
}

// Run 启动调度并阻塞到 ctx 取消，返回前等待正在执行的作业结束。
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		slog.String("overdue_spec", s.cfg.OverdueSpec),
		slog.String("recurrence_spec", s.cfg.RecurrenceSpec))

	// 启动时先补跑一次，避免停机期间的积压等到下一个周期。
	s.run(jobOverdue, s.MarkOverdue)
	s.run(jobRecurrence, s.RollRecurring)

	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(job string, fn func(ctx context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	n, err := fn(ctx)
	if err != nil {
		metrics.SchedulerRunsTotal.WithLabelValues(job, "error").Inc()
		s.logger.Error("scheduler job failed", slog.String("job", job), slog.String("error", err.Error()))
		return
	}
	metrics.SchedulerRunsTotal.WithLabelValues(job, "ok").Inc()
	metrics.SchedulerTasksUpdatedTotal.WithLabelValues(job).Add(float64(n))
	if n > 0 {
		s.logger.Info("scheduler job done",
			slog.String("job", job),
			slog.Int64("updated", n),
			slog.Duration("elapsed", time.Since(start)))
	}
}

// MarkOverdue 把已过截止时间且未完成的任务标记为 atrasada，返回更新的任务数。
func (s *Scheduler) MarkOverdue(ctx context.Context) (int64, error) {
	return s.store.MarkOverdue(ctx, s.now())
}

// RollRecurring 把截止时间已过的已完成周期任务重置为 a_fazer，
// 并按重复频率把截止时间推进到当前时间之后。
func (s *Scheduler) RollRecurring(ctx context.Context) (int64, error) {
	now := s.now()
	tasks, err := s.store.DueRecurringTasks(ctx, now, s.cfg.RecurrenceLimit)
	if err != nil {
		return 0, err
	}

	var updated int64
	for i := range tasks {
		t := &tasks[i]
		if t.DueDate == nil || t.Recurrence == nil {
			continue
		}
		next, ok := NextDue(*t.DueDate, *t.Recurrence, now)
		if !ok {
			s.logger.Warn("unknown recurrence, skip task",
				slog.Uint64("task_id", uint64(t.ID)),
				slog.String("recorrencia", *t.Recurrence))
			continue
		}
		applied, err := s.store.ResetRecurringTask(ctx, t.ID, next)
		if err != nil {
			return updated, err
		}
		if !applied {
			continue
		}
		updated++
		if s.index != nil {
			t.Status = model.StatusTodo
			t.Done = false
			t.DueDate = &next
			s.reindex(ctx, *t)
		}
	}
	return updated, nil
}

func (s *Scheduler) reindex(ctx context.Context, t model.Task) {
	wsIDs, err := s.store.TaskWorkspaceIDs(ctx, t.ID)
	if err != nil {
		s.logger.Warn("load task workspaces for index failed", slog.String("error", err.Error()))
		return
	}
	s.index.IndexTask(t, wsIDs)
}

// NextDue 按重复频率推进截止时间，直到晚于 now。频率未知时返回 false。
func NextDue(due time.Time, recurrence string, now time.Time) (time.Time, bool) {
	step := func(t time.Time) time.Time { return t }
	switch recurrence {
	case model.RecurrenceDaily:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case model.RecurrenceWeekly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	case model.RecurrenceMonthly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	default:
		return due, false
	}
	next := step(due)
	for !next.After(now) {
		next = step(next)
	}
	return next, true
}

// cronLogger 把 cron 的内部日志转到 slog。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)...)
}
