package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
}

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	client   *sendgrid.Client
	fromName string
	fromAddr string
	logger   *zap.Logger
}

// NewSendGridSender creates a SendGrid sender.
func NewSendGridSender(apiKey, fromAddr, fromName string, logger *zap.Logger) (*SendGridSender, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is empty")
	}
	if fromAddr == "" {
		return nil, errors.New("from address is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		fromName: fromName,
		fromAddr: fromAddr,
		logger:   logger,
	}, nil
}

// Send implements Sender.
func (s *SendGridSender) Send(ctx context.Context, to string, msg Message) error {
	if to == "" {
		return errors.New("to address is empty")
	}
	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.fromName, s.fromAddr),
		msg.Subject,
		sgmail.NewEmail("", to),
		msg.Text,
		msg.HTML,
	)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d body=%s", resp.StatusCode, resp.Body)
	}
	s.logger.Debug("email sent", zap.Int("status", resp.StatusCode), zap.String("subject", msg.Subject))
	return nil
}

// LogSender writes messages to the log instead of delivering them. It is used
// when no SendGrid key is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, to string, msg Message) error {
	s.logger.Info("email not delivered, no provider configured",
		zap.String("to", to),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text))
	return nil
}
