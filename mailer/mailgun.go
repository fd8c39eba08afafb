package mailer

import (
	"context"
	"net/http"

	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	mg "github.com/mailgun/mailgun-go/v4"
)

// MailgunConfig configures the Mailgun transport
type MailgunConfig struct {
	Domain  string
	APIKey  string
	APIBase string
	Sender  string
}

// MailgunGateway delivers messages through the Mailgun HTTP API
type MailgunGateway struct {
	client mg.Mailgun
	sender string
	domain string
}

var _ account.NotificationGateway = (*MailgunGateway)(nil)

func NewMailgunGateway(cfg MailgunConfig) *MailgunGateway {
	client := mg.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.APIBase != "" {
		client.SetAPIBase(cfg.APIBase)
	}
	return &MailgunGateway{client: client, sender: cfg.Sender, domain: cfg.Domain}
}

func (m *MailgunGateway) Send(ctx context.Context, msg account.Message) error {
	message := m.client.NewMessage(m.sender, msg.Subject, msg.Text, msg.To)
	if msg.HTML != "" {
		message.SetHtml(msg.HTML)
	}

	if _, _, err := m.client.Send(ctx, message); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "mailgun delivery failed").
			WithTextCode(account.TextCodeServiceUnavailable).
			WithCode(http.StatusServiceUnavailable).
			WithMetadata(map[string]any{"to": msg.To, "domain": m.domain})
	}
	return nil
}
