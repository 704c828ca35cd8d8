// Package mailer delivers transactional email to students.
package mailer

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/pkg/config"
)

// ErrNoRecipient is returned for messages without a deliverable address.
var ErrNoRecipient = errors.New("mailer: message has no recipient")

// Message is a single outgoing email.
type Message struct {
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Mailer sends messages synchronously; retries belong to the caller.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns a SendGrid mailer when an API key is configured and a log mailer otherwise.
func New(cfg config.NotificationConfig, logger *zap.Logger) Mailer {
	if strings.TrimSpace(cfg.SendGridAPIKey) != "" {
		return NewSendGridMailer(cfg.SendGridAPIKey, cfg.AppName, cfg.FromName, cfg.FromEmail)
	}
	return NewLogMailer(cfg.AppName, logger)
}

// LogMailer writes messages to the application log, for development.
type LogMailer struct {
	subjPrefix string
	logger     *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(appName string, logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{subjPrefix: subjectPrefix(appName), logger: logger}
}

// Send logs the message instead of delivering it.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if msg.To.Address == "" {
		return ErrNoRecipient
	}
	m.logger.Info("email",
		zap.String("to", msg.To.String()),
		zap.String("subject", m.subjPrefix+msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}

func subjectPrefix(appName string) string {
	if appName == "" {
		return ""
	}
	return "[" + appName + "] "
}
