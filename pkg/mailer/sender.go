package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/pkg/config"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// RetryConfig bounds SMTP delivery attempts.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends HTML mail through a single SMTP relay.
type SMTPSender struct {
	addr     string
	from     string
	fromName string
	auth     smtp.Auth
	send     sendFunc
	retry    retrypolicy.RetryPolicy[any]
	logger   *zap.Logger
}

// New returns an SMTP sender, or a LogSender when no relay host is configured.
func New(cfg config.SMTPConfig, retry RetryConfig, logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return NewLogSender(logger)
	}
	return NewSMTPSender(cfg, retry, logger)
}

// NewSMTPSender builds a sender for the relay described by cfg.
func NewSMTPSender(cfg config.SMTPConfig, retry RetryConfig, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	var auth smtp.Auth
	if cfg.User != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, port),
		from:     cfg.From,
		fromName: cfg.FromName,
		auth:     auth,
		send:     smtp.SendMail,
		retry:    newRetryPolicy(retry),
		logger:   logger,
	}
}

func newRetryPolicy(cfg RetryConfig) retrypolicy.RetryPolicy[any] {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay * 8
	}
	return retrypolicy.NewBuilder[any]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ any, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		Build()
}

// Send delivers msg, retrying transient SMTP failures with backoff.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("mailer: recipient is required")
	}
	body := s.build(msg)
	attempts := 0
	_, err := failsafe.With(s.retry).WithContext(ctx).Get(func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++
		if attempts > 1 {
			s.logger.Debug("retrying email delivery", zap.String("to", msg.To), zap.Int("attempt", attempts))
		}
		return nil, s.send(s.addr, s.auth, s.from, []string{msg.To}, body)
	})
	if err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) build(msg Message) []byte {
	from := sanitizeHeader(s.from)
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", sanitizeHeader(s.fromName), from)
	}
	headers := []string{
		"From: " + from,
		"To: " + sanitizeHeader(msg.To),
		"Subject: " + sanitizeHeader(msg.Subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.HTML)
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(value)
}

// LogSender records messages instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a sender that only logs.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message envelope and drops it.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email delivery disabled, message dropped",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
