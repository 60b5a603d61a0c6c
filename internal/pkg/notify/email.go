package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"noiton/internal/config"

	"gopkg.in/gomail.v2"
)

// Sender 发送一封 HTML 邮件。
type Sender interface {
	Send(ctx context.Context, to []string, subject, html string) error
	// Configured 报告发送通道是否可用，不可用时通知会被跳过。
	Configured() bool
}

// EmailSender 通过 SMTP 发送邮件。
type EmailSender struct {
	cfg    config.EmailConfig
	logger *slog.Logger
}

// NewEmailSender 创建 SMTP 发送器。
func NewEmailSender(cfg config.EmailConfig, logger *slog.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, logger: logger}
}

// Configured 判断 SMTP 主机、账号与发件人是否都已配置。
func (s *EmailSender) Configured() bool {
	return s.cfg.SMTPHost != "" && s.cfg.SMTPUser != "" && s.cfg.FromEmail != ""
}

// Send 发送邮件。gomail 不支持 ctx，ctx 只用于发送前检查是否已取消。
func (s *EmailSender) Send(ctx context.Context, to []string, subject, html string) error {
	if !s.Configured() {
		return fmt.Errorf("email config missing")
	}
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.FromEmail)
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	d := gomail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	s.logger.Info("email sent", slog.Int("recipients", len(recipients)), slog.String("subject", subject))
	return nil
}
