package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/template/django/v3"
	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
)

//go:embed templates/*.html templates/*.txt
var templatesFS embed.FS

var defaultSubjects = map[account.NotificationKind]string{
	account.NotificationEmailConfirmation: "Confirm your account",
	account.NotificationPasswordReset:     "Reset Password",
}

// TemplateComposer renders notifications with django templates. Each kind
// has a <kind>.html and a <kind>.txt template.
type TemplateComposer struct {
	html     *django.Engine
	text     *django.Engine
	appName  string
	subjects map[account.NotificationKind]string
}

// NewTemplateComposer loads the embedded templates
func NewTemplateComposer(appName string) (*TemplateComposer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}
	return NewTemplateComposerFS(sub, appName)
}

// NewTemplateComposerFS loads templates from fsys, used to override the
// bundled ones.
func NewTemplateComposerFS(fsys fs.FS, appName string) (*TemplateComposer, error) {
	html := django.NewFileSystem(http.FS(fsys), ".html")
	if err := html.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load html email templates")
	}

	text := django.NewFileSystem(http.FS(fsys), ".txt")
	text.SetAutoEscape(false)
	if err := text.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load text email templates")
	}

	subjects := make(map[account.NotificationKind]string, len(defaultSubjects))
	for k, v := range defaultSubjects {
		subjects[k] = v
	}

	return &TemplateComposer{
		html:     html,
		text:     text,
		appName:  appName,
		subjects: subjects,
	}, nil
}

// WithSubject overrides the subject line used for kind
func (c *TemplateComposer) WithSubject(kind account.NotificationKind, subject string) *TemplateComposer {
	if subject != "" {
		c.subjects[kind] = subject
	}
	return c
}

func (c *TemplateComposer) Compose(n account.Notification) (account.Message, error) {
	subject, ok := c.subjects[n.Kind]
	if !ok {
		return account.Message{}, goerrors.New("unknown notification kind", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": n.Kind})
	}

	name := n.FullName
	if strings.TrimSpace(name) == "" {
		name = n.Username
	}

	binding := map[string]any{
		"name":     name,
		"username": n.Username,
		"email":    n.To,
		"link":     n.Link,
		"expires":  HumanizeDuration(n.Expires),
		"app_name": c.appName,
	}

	var html, text bytes.Buffer
	if err := c.html.Render(&html, string(n.Kind), binding); err != nil {
		return account.Message{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render html email").
			WithMetadata(map[string]any{"kind": n.Kind})
	}

	if err := c.text.Render(&text, string(n.Kind), binding); err != nil {
		return account.Message{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render text email").
			WithMetadata(map[string]any{"kind": n.Kind})
	}

	return account.Message{
		To:      n.To,
		Subject: subject,
		Text:    strings.TrimSpace(text.String()) + "\n",
		HTML:    html.String(),
	}, nil
}

// HumanizeDuration formats d in whole days, hours or minutes
func HumanizeDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
