// Package notify 负责举报流程的邮件通知。
//
// 通知通过后台任务池异步发送，发送前按 mail 作用域限流，失败只记录日志与指标，
// 不影响举报本身的处理结果。
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"noiton/internal/model"
	"noiton/internal/pkg/metrics"
	"noiton/internal/pkg/queue"
)

const (
	resultSent    = "sent"
	resultFailed  = "failed"
	resultSkipped = "skipped"
	resultDropped = "dropped"
)

// Throttle 是发送前的阻塞限流（ratelimit.Limiter 实现）。
type Throttle interface {
	Acquire(ctx context.Context) error
}

// ReportMailer 在举报提交后通知审核员，在举报处理后通知举报人。
type ReportMailer struct {
	sender     Sender
	pool       *queue.Pool
	throttle   Throttle
	moderators []string
	logger     *slog.Logger
}

// NewReportMailer 创建举报通知器。
//
// 参数:
//   - sender: 邮件发送器
//   - pool: 后台任务池，需要由调用方 Start
//   - throttle: 发送限流，可以为 nil
//   - moderators: 新举报的收件人
func NewReportMailer(sender Sender, pool *queue.Pool, throttle Throttle, moderators []string, logger *slog.Logger) *ReportMailer {
	return &ReportMailer{
		sender:     sender,
		pool:       pool,
		throttle:   throttle,
		moderators: moderators,
		logger:     logger,
	}
}

// ReportSubmitted 通知审核员有新的举报。
func (m *ReportMailer) ReportSubmitted(report model.Report, task model.Task) {
	if len(m.moderators) == 0 {
		metrics.NotificationsTotal.WithLabelValues(resultSkipped).Inc()
		return
	}
	subject := fmt.Sprintf("[Noiton] Nova denúncia #%d", report.ID)
	body := fmt.Sprintf(`<p>A tarefa <strong>%s</strong> (#%d) foi denunciada.</p><p>Motivo: %s</p>`,
		html.EscapeString(task.Title), task.ID, html.EscapeString(report.Reason))
	m.enqueue("report_submitted", m.moderators, subject, layout(subject, body))
}

// ReportDecided 通知举报人处理结果。
func (m *ReportMailer) ReportDecided(report model.Report, reporter model.User, taskTitle string) {
	subject := fmt.Sprintf("[Noiton] Sua denúncia #%d foi %s", report.ID, report.Status)
	body := fmt.Sprintf(`<p>Olá, %s.</p><p>Sua denúncia sobre a tarefa <strong>%s</strong> foi marcada como <strong>%s</strong>.</p>`,
		html.EscapeString(reporter.Name), html.EscapeString(taskTitle), report.Status)
	if report.ModeratorNotes != "" {
		body += fmt.Sprintf(`<p>Observações: %s</p>`, html.EscapeString(report.ModeratorNotes))
	}
	m.enqueue("report_decided", []string{reporter.Email}, subject, layout(subject, body))
}

func (m *ReportMailer) enqueue(name string, to []string, subject, body string) {
	if !m.sender.Configured() {
		m.logger.Warn("email config missing, skip notification", slog.String("job", name))
		metrics.NotificationsTotal.WithLabelValues(resultSkipped).Inc()
		return
	}
	ok := m.pool.Submit(queue.Job{Name: name, Run: func(ctx context.Context) error {
		if m.throttle != nil {
			if err := m.throttle.Acquire(ctx); err != nil {
				metrics.NotificationsTotal.WithLabelValues(resultFailed).Inc()
				return fmt.Errorf("mail throttle: %w", err)
			}
		}
		if err := m.sender.Send(ctx, to, subject, body); err != nil {
			metrics.NotificationsTotal.WithLabelValues(resultFailed).Inc()
			return err
		}
		metrics.NotificationsTotal.WithLabelValues(resultSent).Inc()
		return nil
	}})
	if !ok {
		metrics.NotificationsTotal.WithLabelValues(resultDropped).Inc()
	}
}

func layout(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8" /></head>
<body style="font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937;">
  <div style="max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; border: 1px solid #e5e7eb;">
    <div style="background: #0f172a; color: #ffffff; padding: 16px 20px; font-weight: bold;">%s</div>
    <div style="padding: 20px;">%s</div>
  </div>
</body>
</html>`, html.EscapeString(title), body)
}
