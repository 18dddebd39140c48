package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.PlainText),
	)
	return nil
}

// SendGridSender delivers messages through the SendGrid v3 API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridSender constructs a SendGridSender.
func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainText, msg.HTML)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
