package mailer

import (
	"context"

	account "github.com/goliatone/go-account"
)

// LogGateway writes messages to the logger instead of sending them
type LogGateway struct {
	logger account.Logger
}

var _ account.NotificationGateway = (*LogGateway)(nil)

func NewLogGateway(logger account.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (l *LogGateway) Send(_ context.Context, msg account.Message) error {
	l.logger.Info("email", "to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}
