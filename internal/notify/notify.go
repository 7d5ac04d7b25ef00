// Package notify delivers import reports to the people watching the sync.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Notifier sends one message.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// Backend names a notification channel.
type Backend string

const (
	BackendNone Backend = "none"
	BackendLog  Backend = "log"
	BackendSMTP Backend = "smtp"
)

// Config selects and configures the notification channel.
type Config struct {
	Backend       Backend    `mapstructure:"backend" validate:"oneof=none log smtp"`
	SubjectPrefix string     `mapstructure:"subject_prefix"`
	SMTP          SMTPConfig `mapstructure:"smtp"`
}

// New builds the notifier described by cfg.
func New(cfg Config, logger *slog.Logger) (Notifier, error) {
	var n Notifier
	switch cfg.Backend {
	case BackendNone, "":
		return Noop{}, nil
	case BackendLog:
		n = NewLogNotifier(logger)
	case BackendSMTP:
		smtpNotifier, err := NewSMTPNotifier(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		n = smtpNotifier
	default:
		return nil, fmt.Errorf("unknown notification backend %q", cfg.Backend)
	}
	if cfg.SubjectPrefix != "" {
		n = prefixed{prefix: cfg.SubjectPrefix, next: n}
	}
	return n, nil
}

// Noop discards messages.
type Noop struct{}

func (Noop) Send(context.Context, string, string) error { return nil }

// LogNotifier writes messages to a logger at warn level.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, subject, body string) error {
	n.logger.WarnContext(ctx, subject, "body", body)
	return nil
}

type prefixed struct {
	prefix string
	next   Notifier
}

func (p prefixed) Send(ctx context.Context, subject, body string) error {
	return p.next.Send(ctx, p.prefix+" "+subject, body)
}
