// Package notify delivers anomaly reports to the reconciliation operations
// team. Delivery is best-effort: failures are retried with exponential
// backoff and finally logged, never propagated into the pipeline result.
package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/retry"
)

// Notifier is the notification collaborator contract. attachment may be
// empty.
type Notifier interface {
	Notify(ctx context.Context, subject, body, recipient, attachment string) error
}

// Config holds SMTP settings. The password comes from the environment.
type Config struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Sender      string        `yaml:"sender"`
	Recipient   string        `yaml:"recipient"`
	MaxAttempts uint64        `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Password    string        `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Host:        "smtp.gmail.com",
		Port:        587,
		MaxAttempts: 5,
		BaseDelay:   time.Second,
	}
}

// EmailNotifier sends MIME messages over SMTP with STARTTLS.
type EmailNotifier struct {
	cfg Config
}

func NewEmailNotifier(cfg Config) *EmailNotifier {
	return &EmailNotifier{cfg: cfg}
}

// Notify sends one email, retrying transient failures up to the configured
// attempt cap.
func (n *EmailNotifier) Notify(ctx context.Context, subject, body, recipient, attachment string) error {
	message, err := n.buildMessage(subject, body, recipient, attachment)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	auth := smtp.PlainAuth("", n.cfg.Sender, n.cfg.Password, n.cfg.Host)

	op := func() error {
		return smtp.SendMail(addr, auth, n.cfg.Sender, []string{recipient}, message)
	}
	if err := retry.Do(ctx, "send-email", op, n.cfg.MaxAttempts, n.cfg.BaseDelay); err != nil {
		return fmt.Errorf("send email to %s: %w", recipient, err)
	}
	log.Info().Str("recipient", recipient).Str("subject", subject).Msg("notification email sent")
	return nil
}

const mimeBoundary = "sradg-report-boundary"

func (n *EmailNotifier) buildMessage(subject, body, recipient, attachment string) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", n.cfg.Sender)
	fmt.Fprintf(&sb, "To: %s\r\n", recipient)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")

	if attachment == "" {
		sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		sb.WriteString(body)
		return []byte(sb.String()), nil
	}

	data, err := os.ReadFile(attachment)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", attachment, err)
	}

	fmt.Fprintf(&sb, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mimeBoundary)
	fmt.Fprintf(&sb, "--%s\r\n", mimeBoundary)
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	fmt.Fprintf(&sb, "--%s\r\n", mimeBoundary)
	sb.WriteString("Content-Type: application/octet-stream\r\n")
	sb.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&sb, "Content-Disposition: attachment; filename=%s\r\n\r\n", filepath.Base(attachment))
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	sb.WriteString("\r\n")
	fmt.Fprintf(&sb, "--%s--\r\n", mimeBoundary)
	return []byte(sb.String()), nil
}
