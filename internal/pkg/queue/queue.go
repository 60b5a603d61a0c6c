// Package queue 提供进程内的后台任务池，用于发送通知这类不应阻塞请求的工作。
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"noiton/internal/pkg/metrics"
)

// Job 是一个具名的后台任务。Name 只用于日志。
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool 是固定 worker 数的有界任务池。
type Pool struct {
	logger     *slog.Logger
	workers    int
	jobTimeout time.Duration
	jobs       chan Job

	wg     sync.WaitGroup
	closed atomic.Bool

	stats poolStats
}

type poolStats struct {
	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
}

// Stats 是任务池统计快照。
type Stats struct {
	Enqueued  int64
	Succeeded int64
	Failed    int64
	Dropped   int64
	Panics    int64
}

// NewPool 创建任务池。
//
// 参数:
//   - workers: worker 数量（至少为 1）
//   - capacity: 等待队列容量（至少为 1）
//   - jobTimeout: 单个任务的执行超时，<=0 表示不限制
func NewPool(logger *slog.Logger, workers, capacity int, jobTimeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		logger:     logger,
		workers:    workers,
		jobTimeout: jobTimeout,
		jobs:       make(chan Job, capacity),
	}
}

// Start 启动 worker。ctx 取消后 worker 不再取新任务。
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			metrics.QueueDepth.Set(float64(len(p.jobs)))
			p.run(ctx, job, id)
		}
	}
}

func (p *Pool) run(ctx context.Context, job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.panics.Add(1)
			p.logger.Error("job panic recovered",
				slog.String("job", job.Name),
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}
	if err := job.Run(ctx); err != nil {
		p.stats.failed.Add(1)
		p.logger.Warn("job failed",
			slog.String("job", job.Name),
			slog.Int("worker_id", workerID),
			slog.String("error", err.Error()))
		return
	}
	p.stats.succeeded.Add(1)
}

// Submit 非阻塞入队。池已关闭或队列已满时返回 false，任务被丢弃。
func (p *Pool) Submit(job Job) bool {
	if job.Run == nil {
		return false
	}
	if p.closed.Load() {
		p.logger.Warn("pool is closed, reject job", slog.String("job", job.Name))
		return false
	}
	select {
	case p.jobs <- job:
		p.stats.enqueued.Add(1)
		metrics.QueueDepth.Set(float64(len(p.jobs)))
		return true
	default:
		p.stats.dropped.Add(1)
		p.logger.Warn("queue full, drop job",
			slog.String("job", job.Name),
			slog.Int("capacity", cap(p.jobs)))
		return false
	}
}

// Shutdown 拒绝新任务并等待已入队的任务执行完，ctx 结束时放弃等待。
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		metrics.QueueDepth.Set(0)
		p.logger.Info("notification pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool shutdown: %w", ctx.Err())
	}
}

// Stats 返回统计快照。
func (p *Pool) Stats() Stats {
	return Stats{
		Enqueued:  p.stats.enqueued.Load(),
		Succeeded: p.stats.succeeded.Load(),
		Failed:    p.stats.failed.Load(),
		Dropped:   p.stats.dropped.Load(),
		Panics:    p.stats.panics.Load(),
	}
}

// Len 返回等待中的任务数。
func (p *Pool) Len() int {
	return len(p.jobs)
}
