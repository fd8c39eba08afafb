package account

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// NotificationKind selects the message template
type NotificationKind string

const (
	NotificationEmailConfirmation NotificationKind = "email_confirmation"
	NotificationPasswordReset     NotificationKind = "password_reset"
)

// Notification is the data available to a MessageComposer
type Notification struct {
	Kind     NotificationKind
	To       string
	Username string
	FullName string
	Link     string
	Expires  time.Duration
}

// MessageComposer turns a notification into a deliverable message
type MessageComposer interface {
	Compose(n Notification) (Message, error)
}

// ComposerFunc adapts a function to the MessageComposer interface.
type ComposerFunc func(n Notification) (Message, error)

func (f ComposerFunc) Compose(n Notification) (Message, error) {
	return f(n)
}

// Notifier composes confirmation and reset messages and dispatches them
// on a background goroutine. Delivery failures are logged and never affect
// the operation that triggered them.
type Notifier struct {
	gateway  NotificationGateway
	composer MessageComposer
	baseURL  string
	routes   NotifierRoutes
	timeout  time.Duration
	logger   Logger
	wg       sync.WaitGroup
}

// NotifierRoutes are the paths links point at
type NotifierRoutes struct {
	ConfirmEmail  string
	ResetPassword string
}

func NewNotifier(gateway NotificationGateway, baseURL string) *Notifier {
	return &Notifier{
		gateway:  gateway,
		composer: ComposerFunc(plainMessage),
		baseURL:  strings.TrimRight(baseURL, "/"),
		routes: NotifierRoutes{
			ConfirmEmail:  "/account/confirm-email",
			ResetPassword: "/account/reset-password",
		},
		timeout: 10 * time.Second,
		logger:  defLogger{},
	}
}

func (n *Notifier) WithComposer(composer MessageComposer) *Notifier {
	if composer != nil {
		n.composer = composer
	}
	return n
}

func (n *Notifier) WithRoutes(routes NotifierRoutes) *Notifier {
	if routes.ConfirmEmail != "" {
		n.routes.ConfirmEmail = routes.ConfirmEmail
	}
	if routes.ResetPassword != "" {
		n.routes.ResetPassword = routes.ResetPassword
	}
	return n
}

// WithTimeout bounds each delivery attempt
func (n *Notifier) WithTimeout(timeout time.Duration) *Notifier {
	if timeout > 0 {
		n.timeout = timeout
	}
	return n
}

func (n *Notifier) WithLogger(logger Logger) *Notifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

// ConfirmationLink builds the link embedded in confirmation messages
func (n *Notifier) ConfirmationLink(identity *Identity, token string) string {
	q := url.Values{}
	q.Set("userId", identity.ID.String())
	q.Set("token", token)
	return n.baseURL + n.routes.ConfirmEmail + "?" + q.Encode()
}

// ResetLink builds the link embedded in password reset messages
func (n *Notifier) ResetLink(identity *Identity, token string) string {
	q := url.Values{}
	q.Set("email", identity.Email)
	q.Set("token", token)
	return n.baseURL + n.routes.ResetPassword + "?" + q.Encode()
}

func (n *Notifier) SendConfirmation(ctx context.Context, identity *Identity, token string, ttl time.Duration) {
	if n == nil || identity == nil {
		return
	}
	n.dispatch(ctx, Notification{
		Kind:     NotificationEmailConfirmation,
		To:       identity.Email,
		Username: identity.Username,
		FullName: identity.FullName,
		Link:     n.ConfirmationLink(identity, token),
		Expires:  ttl,
	})
}

func (n *Notifier) SendPasswordReset(ctx context.Context, identity *Identity, token string, ttl time.Duration) {
	if n == nil || identity == nil {
		return
	}
	n.dispatch(ctx, Notification{
		Kind:     NotificationPasswordReset,
		To:       identity.Email,
		Username: identity.Username,
		FullName: identity.FullName,
		Link:     n.ResetLink(identity, token),
		Expires:  ttl,
	})
}

// Wait blocks until in-flight deliveries finish
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, note Notification) {
	if n.gateway == nil {
		return
	}

	msg, err := n.composer.Compose(note)
	if err != nil {
		n.logger.Error("failed to compose notification", "kind", note.Kind, "to", note.To, "error", err)
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		if err := n.gateway.Send(sendCtx, msg); err != nil {
			n.logger.Error("failed to deliver notification", "kind", note.Kind, "to", msg.To, "error", err)
			return
		}

		n.logger.Debug("notification delivered", "kind", note.Kind, "to", msg.To)
	}()
}

func plainMessage(n Notification) (Message, error) {
	switch n.Kind {
	case NotificationEmailConfirmation:
		return Message{
			To:      n.To,
			Subject: "Confirm your account",
			Text:    fmt.Sprintf("Click the link to confirm your account: %s", n.Link),
			HTML:    fmt.Sprintf("<a href='%s'>Click</a> on the link to confirm your account.", n.Link),
		}, nil
	case NotificationPasswordReset:
		return Message{
			To:      n.To,
			Subject: "Reset Password",
			Text:    fmt.Sprintf("Click the link to reset your password: %s", n.Link),
			HTML:    fmt.Sprintf("<a href='%s'>Click</a> on the link to reset your password.", n.Link),
		}, nil
	default:
		return Message{}, goerrors.New("unknown notification kind", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": n.Kind})
	}
}
