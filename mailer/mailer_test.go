package mailer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Send(ctx context.Context, msg account.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockLogger struct {
	mock.Mock
}

func (m *mockLogger) Debug(msg string, args ...any) { m.Called(msg, args) }
func (m *mockLogger) Info(msg string, args ...any)  { m.Called(msg, args) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.Called(msg, args) }
func (m *mockLogger) Error(msg string, args ...any) { m.Called(msg, args) }

const confirmLink = "https://accounts.mcvz.com/account/confirm-email?token=abc.def&userId=42"

func TestTemplateComposerConfirmation(t *testing.T) {
	composer, err := NewTemplateComposer("MCVZ")
	require.NoError(t, err)

	msg, err := composer.Compose(account.Notification{
		Kind:     account.NotificationEmailConfirmation,
		To:       "alice@x.com",
		Username: "alice",
		FullName: "Alice Liddell",
		Link:     confirmLink,
		Expires:  7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@x.com", msg.To)
	assert.Equal(t, "Confirm your account", msg.Subject)
	assert.Contains(t, msg.Text, "Hello Alice Liddell")
	assert.Contains(t, msg.Text, confirmLink)
	assert.Contains(t, msg.Text, "7 days")
	assert.Contains(t, msg.HTML, "MCVZ")
	assert.Contains(t, msg.HTML, "href=")
}

func TestTemplateComposerResetFallsBackToUsername(t *testing.T) {
	composer, err := NewTemplateComposer("MCVZ")
	require.NoError(t, err)

	msg, err := composer.WithSubject(account.NotificationPasswordReset, "Reset your MCVZ password").
		Compose(account.Notification{
			Kind:     account.NotificationPasswordReset,
			To:       "bob@x.com",
			Username: "bob",
			Link:     "https://accounts.mcvz.com/account/reset-password?email=bob%40x.com&token=t",
			Expires:  24 * time.Hour,
		})
	require.NoError(t, err)

	assert.Equal(t, "Reset your MCVZ password", msg.Subject)
	assert.Contains(t, msg.Text, "Hello bob")
	assert.Contains(t, msg.Text, "24 hours")
}

func TestTemplateComposerUnknownKind(t *testing.T) {
	composer, err := NewTemplateComposer("MCVZ")
	require.NoError(t, err)

	_, err = composer.Compose(account.Notification{Kind: "newsletter"})
	assert.Error(t, err)
}

func TestHumanizeDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, ""},
		{24 * time.Hour, "1 day"},
		{7 * 24 * time.Hour, "7 days"},
		{2 * time.Hour, "2 hours"},
		{90 * time.Minute, "90 minutes"},
		{30 * time.Second, "30 seconds"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanizeDuration(tt.in), tt.in.String())
	}
}

func TestBuildMIMEMultipart(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	body, err := buildMIME("no-reply@mcvz.com", "Accounts", account.Message{
		To:      "alice@x.com",
		Subject: "Confirm your account",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	}, now)
	require.NoError(t, err)

	raw := string(body)
	assert.Contains(t, raw, "To: alice@x.com\r\n")
	assert.Contains(t, raw, "<no-reply@mcvz.com>")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "plain body")
	assert.Contains(t, raw, "<p>html body</p>")
	assert.Contains(t, raw, "Date: "+now.Format(time.RFC1123Z))
}

func TestBuildMIMEPlainOnly(t *testing.T) {
	body, err := buildMIME("no-reply@mcvz.com", "", account.Message{
		To:      "alice@x.com",
		Subject: "Hi",
		Text:    "plain body",
	}, time.Now())
	require.NoError(t, err)

	raw := string(body)
	assert.Contains(t, raw, "From: no-reply@mcvz.com\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=utf-8")
	assert.False(t, strings.Contains(raw, "multipart"))
}

func TestLogGatewaySend(t *testing.T) {
	logger := &mockLogger{}
	logger.On("Info", "email", mock.Anything).Return()

	gw := NewLogGateway(logger)
	require.NoError(t, gw.Send(context.Background(), account.Message{To: "alice@x.com", Subject: "Hi"}))
	logger.AssertExpectations(t)
}

func TestEmailJobMessage(t *testing.T) {
	msg := account.Message{To: "alice@x.com", Subject: "Hi", Text: "t", HTML: "h"}
	assert.Equal(t, msg, JobFromMessage(msg).Message())
}

func TestQueueRoundTrip(t *testing.T) {
	url := os.Getenv("ACCOUNT_TEST_AMQP_URL")
	if url == "" {
		t.Skip("ACCOUNT_TEST_AMQP_URL not set")
	}

	queue := "account.emails.test." + time.Now().Format("150405.000000")

	publisher, err := NewQueueGateway(url, queue)
	require.NoError(t, err)
	defer publisher.Close()

	delivered := make(chan account.Message, 1)
	gw := &mockGateway{}
	gw.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		delivered <- args.Get(1).(account.Message)
	}).Return(nil)

	logger := &mockLogger{}
	logger.On("Info", mock.Anything, mock.Anything).Return()
	logger.On("Debug", mock.Anything, mock.Anything).Return()

	consumer, err := NewConsumer(url, queue, gw, logger)
	require.NoError(t, err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go consumer.Run(ctx)

	msg := account.Message{To: "alice@x.com", Subject: "Confirm your account", Text: "link"}
	require.NoError(t, publisher.Send(ctx, msg))

	select {
	case got := <-delivered:
		assert.Equal(t, msg, got)
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}

func TestMailgunGatewayWrapsDeliveryFailure(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"), r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer server.Close()

	gateway := NewMailgunGateway(MailgunConfig{
		Domain:  "mg.mcvz.com",
		APIKey:  "key-test",
		APIBase: server.URL + "/v3",
		Sender:  "MCVZ <no-reply@mcvz.com>",
	})

	err := gateway.Send(context.Background(), account.Message{
		To:      "alice@x.com",
		Subject: "Confirm your account",
		Text:    "hello",
	})
	require.Error(t, err)
	assert.Equal(t, account.TextCodeServiceUnavailable, account.Kind(err))
	assert.Equal(t, http.StatusServiceUnavailable, account.StatusFor(err))
	assert.GreaterOrEqual(t, hits, 1)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "alice@x.com", richErr.Metadata["to"])
	assert.Equal(t, "mg.mcvz.com", richErr.Metadata["domain"])
}
