package account_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNotifierLinks(t *testing.T) {
	notifier := account.NewNotifier(nil, "https://accounts.mcvz.com/")
	identity := &account.Identity{ID: uuid.New(), Email: "alice@x.com"}

	confirm, err := url.Parse(notifier.ConfirmationLink(identity, "tok+/="))
	require.NoError(t, err)
	assert.Equal(t, "/account/confirm-email", confirm.Path)
	assert.Equal(t, identity.ID.String(), confirm.Query().Get("userId"))
	assert.Equal(t, "tok+/=", confirm.Query().Get("token"))

	notifier.WithRoutes(account.NotifierRoutes{ResetPassword: "/reset"})
	reset, err := url.Parse(notifier.ResetLink(identity, "abc"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.mcvz.com", reset.Host)
	assert.Equal(t, "/reset", reset.Path)
	assert.Equal(t, "alice@x.com", reset.Query().Get("email"))
}

func TestNotifierSendConfirmation(t *testing.T) {
	gateway := &MockGateway{}
	gateway.On("Send", mock.Anything, mock.MatchedBy(func(msg account.Message) bool {
		return msg.To == "alice@x.com" && msg.Subject == "Confirm your account"
	})).Return(nil).Once()

	notifier := account.NewNotifier(gateway, "https://accounts.mcvz.com")
	identity := &account.Identity{ID: uuid.New(), Email: "alice@x.com", Username: "alice"}

	notifier.SendConfirmation(context.Background(), identity, "token", time.Hour)
	notifier.Wait()

	gateway.AssertExpectations(t)
}

func TestNotifierDeliveryFailureIsLogged(t *testing.T) {
	gateway := &MockGateway{}
	gateway.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	logger := &MockLogger{}
	logger.On("Error", "failed to deliver notification", mock.Anything).Return().Once()

	notifier := account.NewNotifier(gateway, "https://accounts.mcvz.com").WithLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	notifier.SendPasswordReset(ctx, &account.Identity{ID: uuid.New(), Email: "bob@x.com"}, "token", time.Hour)
	cancel()
	notifier.Wait()

	gateway.AssertExpectations(t)
	logger.AssertExpectations(t)
}

func TestNotifierComposerFailureSkipsSend(t *testing.T) {
	gateway := &MockGateway{}

	logger := &MockLogger{}
	logger.On("Error", "failed to compose notification", mock.Anything).Return().Once()

	notifier := account.NewNotifier(gateway, "https://accounts.mcvz.com").
		WithLogger(logger).
		WithComposer(account.ComposerFunc(func(n account.Notification) (account.Message, error) {
			return account.Message{}, errors.New("template missing")
		}))

	notifier.SendConfirmation(context.Background(), &account.Identity{ID: uuid.New(), Email: "carol@x.com"}, "token", time.Hour)
	notifier.Wait()

	gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	logger.AssertExpectations(t)
}

func TestNotifierNilSafe(t *testing.T) {
	var notifier *account.Notifier
	assert.NotPanics(t, func() {
		notifier.SendConfirmation(context.Background(), &account.Identity{}, "token", time.Hour)
		notifier.Wait()
	})
}
