package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按路由与状态码统计的请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration 请求耗时分布。
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "noiton",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// SyncOperationsTotal 离线同步操作结果（success / failure / skipped）。
	SyncOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "sync_operations_total",
		Help:      "Offline sync operations by entity and outcome.",
	}, []string{"entity", "outcome"})

	// SyncBatchSize 每批同步请求包含的操作数。
	SyncBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "noiton",
		Name:      "sync_batch_size",
		Help:      "Number of operations per offline sync batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
	})

	// ReportTransitionsTotal 举报状态流转次数。
	ReportTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "report_transitions_total",
		Help:      "Report status transitions by target status.",
	}, []string{"status"})

	// PointsAwardedTotal 完成任务发放的积分总和。
	PointsAwardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "points_awarded_total",
		Help:      "Sum of points awarded for completed tasks.",
	})

	// CascadeDeletesTotal 级联删除次数（task / workspace）。
	CascadeDeletesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "cascade_deletes_total",
		Help:      "Cascading deletions by root entity and result.",
	}, []string{"entity", "result"})

	// SchedulerRunsTotal 后台任务执行次数。
	SchedulerRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "scheduler_runs_total",
		Help:      "Background job runs by job and result.",
	}, []string{"job", "result"})

	// SchedulerTasksUpdatedTotal 后台任务修改的任务数。
	SchedulerTasksUpdatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "scheduler_tasks_updated_total",
		Help:      "Tasks touched by background jobs.",
	}, []string{"job"})

	// RateLimitWaitDuration 获取令牌的等待时间。
	RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "noiton",
		Name:      "ratelimit_wait_seconds",
		Help:      "Time spent waiting for a rate limit token.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// RateLimitTimeoutTotal 等待令牌超时次数。
	RateLimitTimeoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "ratelimit_timeout_total",
		Help:      "Rate limit waits that ended in timeout.",
	})

	// RateLimitRejectedTotal 被限流拒绝的请求数。
	RateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "ratelimit_rejected_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"scope"})

	// NotificationsTotal 通知发送结果。
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noiton",
		Name:      "notifications_total",
		Help:      "Notification deliveries by result.",
	}, []string{"result"})

	// QueueDepth 通知队列当前积压。
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "noiton",
		Name:      "notify_queue_depth",
		Help:      "Pending jobs in the notification queue.",
	})

	once sync.Once
)

// InitMetrics 注册所有指标，可重复调用。
func InitMetrics() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			SyncOperationsTotal,
			SyncBatchSize,
			ReportTransitionsTotal,
			PointsAwardedTotal,
			CascadeDeletesTotal,
			SchedulerRunsTotal,
			SchedulerTasksUpdatedTotal,
			RateLimitWaitDuration,
			RateLimitTimeoutTotal,
			RateLimitRejectedTotal,
			NotificationsTotal,
			QueueDepth,
		)
	})
}
