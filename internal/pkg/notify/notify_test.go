package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"noiton/internal/config"
	"noiton/internal/model"
	"noiton/internal/pkg/queue"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeSender struct {
	mu         sync.Mutex
	configured bool
	fail       bool
	sent       []sentMail
}

func (f *fakeSender) Configured() bool { return f.configured }

func (f *fakeSender) Send(ctx context.Context, to []string, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: html})
	return nil
}

type countingThrottle struct {
	mu    sync.Mutex
	calls int
}

func (c *countingThrottle) Acquire(ctx context.Context) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return nil
}

func newMailer(t *testing.T, sender Sender, throttle Throttle, moderators []string) (*ReportMailer, *queue.Pool) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := queue.NewPool(logger, 1, 10, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	pool.Start(ctx)
	return NewReportMailer(sender, pool, throttle, moderators, logger), pool
}

func drain(t *testing.T, pool *queue.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestReportMailer_NotifiesModeratorsAndReporter(t *testing.T) {
	sender := &fakeSender{configured: true}
	throttle := &countingThrottle{}
	m, pool := newMailer(t, sender, throttle, []string{"mod@example.com"})

	task := model.Task{ID: 7, Title: "<Compras>"}
	report := model.Report{ID: 3, TaskID: 7, Reason: "conteúdo ofensivo", Status: model.ReportPending}
	m.ReportSubmitted(report, task)

	report.Status = model.ReportApproved
	report.ModeratorNotes = "removida"
	m.ReportDecided(report, model.User{Email: "bob@example.com", Name: "Bob"}, task.Title)
	drain(t, pool)

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 mails, got %d", len(sender.sent))
	}
	if sender.sent[0].to[0] != "mod@example.com" || !strings.Contains(sender.sent[0].subject, "#3") {
		t.Fatalf("unexpected moderator mail %+v", sender.sent[0])
	}
	if !strings.Contains(sender.sent[0].body, "&lt;Compras&gt;") {
		t.Fatalf("task title should be escaped: %s", sender.sent[0].body)
	}
	if sender.sent[1].to[0] != "bob@example.com" || !strings.Contains(sender.sent[1].subject, "aprovada") {
		t.Fatalf("unexpected reporter mail %+v", sender.sent[1])
	}
	if !strings.Contains(sender.sent[1].body, "removida") {
		t.Fatalf("moderator notes missing from body")
	}
	if throttle.calls != 2 {
		t.Fatalf("expected throttle per mail, got %d", throttle.calls)
	}
}

func TestReportMailer_SkipsWhenUnconfigured(t *testing.T) {
	sender := &fakeSender{configured: false}
	m, pool := newMailer(t, sender, nil, []string{"mod@example.com"})

	m.ReportSubmitted(model.Report{ID: 1}, model.Task{ID: 1, Title: "x"})
	drain(t, pool)

	if len(sender.sent) != 0 {
		t.Fatalf("unconfigured sender must not send")
	}
	if pool.Stats().Enqueued != 0 {
		t.Fatalf("no job should be enqueued, got %d", pool.Stats().Enqueued)
	}
}

func TestReportMailer_NoModeratorsSkipsSubmission(t *testing.T) {
	sender := &fakeSender{configured: true}
	m, pool := newMailer(t, sender, nil, nil)

	m.ReportSubmitted(model.Report{ID: 1}, model.Task{ID: 1, Title: "x"})
	drain(t, pool)
	if len(sender.sent) != 0 {
		t.Fatalf("expected no mail without moderators")
	}
}

func TestReportMailer_FailureCountedNotPropagated(t *testing.T) {
	sender := &fakeSender{configured: true, fail: true}
	m, pool := newMailer(t, sender, nil, nil)

	m.ReportDecided(model.Report{ID: 2, Status: model.ReportRejected}, model.User{Email: "a@example.com"}, "t")
	drain(t, pool)
	if pool.Stats().Failed != 1 {
		t.Fatalf("expected failed job, got %+v", pool.Stats())
	}
}

func TestEmailSender_RequiresConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewEmailSender(config.EmailConfig{SMTPHost: "smtp.example.com"}, logger)
	if s.Configured() {
		t.Fatalf("sender without user/from must not be configured")
	}
	if err := s.Send(context.Background(), []string{"a@example.com"}, "s", "b"); err == nil {
		t.Fatalf("expected config error")
	}

	s = NewEmailSender(config.EmailConfig{SMTPHost: "smtp.example.com", SMTPUser: "u", FromEmail: "noreply@example.com"}, logger)
	if err := s.Send(context.Background(), []string{"  "}, "s", "b"); err == nil {
		t.Fatalf("expected empty recipient error")
	}
}
