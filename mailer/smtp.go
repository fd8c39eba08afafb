package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
)

// SMTPConfig holds the SMTP endpoint credentials
type SMTPConfig struct {
	Host      string
	Port      int
	EnableSSL bool
	Username  string
	Password  string
	From      string
	FromName  string
}

// SMTPGateway delivers messages through an SMTP relay. With EnableSSL on
// port 465 the connection is TLS from the start, otherwise STARTTLS is used
// when the server offers it.
type SMTPGateway struct {
	cfg    SMTPConfig
	dialer net.Dialer
	now    func() time.Time
}

var _ account.NotificationGateway = (*SMTPGateway)(nil)

func NewSMTPGateway(cfg SMTPConfig) *SMTPGateway {
	return &SMTPGateway{
		cfg: cfg,
		now: time.Now,
	}
}

func (g *SMTPGateway) Send(ctx context.Context, msg account.Message) error {
	body, err := buildMIME(g.cfg.From, g.cfg.FromName, msg, g.now())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build email")
	}

	addr := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))

	conn, err := g.dial(ctx, addr)
	if err != nil {
		return account.ErrServiceUnavailable(err, "failed to connect to smtp server")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, g.cfg.Host)
	if err != nil {
		return account.ErrServiceUnavailable(err, "failed to start smtp session")
	}
	defer client.Close()

	if !g.implicitTLS() && g.cfg.EnableSSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: g.cfg.Host}); err != nil {
				return account.ErrServiceUnavailable(err, "smtp starttls failed")
			}
		}
	}

	if g.cfg.Username != "" {
		auth := smtp.PlainAuth("", g.cfg.Username, g.cfg.Password, g.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryAuth, "smtp authentication failed")
		}
	}

	if err := client.Mail(g.cfg.From); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp MAIL FROM rejected")
	}

	if err := client.Rcpt(msg.To); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp RCPT TO rejected").
			WithMetadata(map[string]any{"to": msg.To})
	}

	w, err := client.Data()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp DATA rejected")
	}

	if _, err := w.Write(body); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write email body")
	}

	if err := w.Close(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp server rejected message")
	}

	return client.Quit()
}

func (g *SMTPGateway) implicitTLS() bool {
	return g.cfg.EnableSSL && g.cfg.Port == 465
}

func (g *SMTPGateway) dial(ctx context.Context, addr string) (net.Conn, error) {
	if g.implicitTLS() {
		d := tls.Dialer{
			NetDialer: &g.dialer,
			Config:    &tls.Config{ServerName: g.cfg.Host},
		}
		return d.DialContext(ctx, "tcp", addr)
	}
	return g.dialer.DialContext(ctx, "tcp", addr)
}

func buildMIME(from, fromName string, msg account.Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	sender := from
	if fromName != "" {
		sender = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), from)
	}

	headers := []string{
		"From: " + sender,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
	}

	if msg.HTML == "" {
		headers = append(headers, "Content-Type: text/plain; charset=utf-8")
		buf.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")
		buf.WriteString(msg.Text)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	headers = append(headers, fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", mw.Boundary()))

	var out bytes.Buffer
	out.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}

	for _, part := range parts {
		if part.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}
