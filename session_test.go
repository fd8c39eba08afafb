package account_test

import (
	"context"
	"strings"
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(cfg account.SessionSettings) (*account.JWTSessions, *account.MemorySessionStore, *testClock) {
	clock := newTestClock()
	store := account.NewMemorySessionStore().WithClock(clock.Now)
	sessions := account.NewJWTSessions(account.DefaultTokenSettings(testSigningKey), cfg, store).
		WithClock(clock.Now)
	return sessions, store, clock
}

func TestSessionsIssueResolve(t *testing.T) {
	sessions, _, clock := newTestSessions(account.DefaultSessionSettings())
	ctx := context.Background()
	identity := &account.Identity{ID: uuid.New()}

	issued, err := sessions.Issue(ctx, identity, false)
	require.NoError(t, err)
	assert.Equal(t, identity.ID.String(), issued.Session.IdentityID)
	assert.Equal(t, clock.Now().Add(30*24*time.Hour), issued.Session.ExpiresAt)
	assert.False(t, issued.Session.Persistent)

	session, err := sessions.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.Session.ID, session.ID)
}

func TestSessionsResolveRejects(t *testing.T) {
	sessions, _, clock := newTestSessions(account.DefaultSessionSettings())
	ctx := context.Background()

	issued, err := sessions.Issue(ctx, &account.Identity{ID: uuid.New()}, true)
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + ".c2lnbmF0dXJl"

	for _, token := range []string{"", "not-a-token", tampered} {
		_, err := sessions.Resolve(ctx, token)
		assert.True(t, account.IsKind(err, account.TextCodeSessionInvalid), token)
	}

	clock.Advance(31 * 24 * time.Hour)
	_, err = sessions.Resolve(ctx, issued.Token)
	assert.True(t, account.IsKind(err, account.TextCodeSessionInvalid))
}

func TestSessionsRevoke(t *testing.T) {
	sessions, _, _ := newTestSessions(account.DefaultSessionSettings())
	ctx := context.Background()
	identity := &account.Identity{ID: uuid.New()}

	issued, err := sessions.Issue(ctx, identity, false)
	require.NoError(t, err)

	require.NoError(t, sessions.Revoke(ctx, issued.Token))
	_, err = sessions.Resolve(ctx, issued.Token)
	assert.True(t, account.IsKind(err, account.TextCodeSessionInvalid))

	issued, err = sessions.Issue(ctx, identity, false)
	require.NoError(t, err)

	require.NoError(t, sessions.RevokeIdentity(ctx, identity.ID.String()))
	_, err = sessions.Resolve(ctx, issued.Token)
	assert.True(t, account.IsKind(err, account.TextCodeSessionInvalid))
}

func TestSessionsRefreshSliding(t *testing.T) {
	sessions, _, clock := newTestSessions(account.SessionSettings{
		CookieName:        "sid",
		Expiration:        10 * time.Hour,
		SlidingExpiration: true,
	})
	ctx := context.Background()

	issued, err := sessions.Issue(ctx, &account.Identity{ID: uuid.New()}, false)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, refreshed, err := sessions.Refresh(ctx, issued.Session)
	require.NoError(t, err)
	assert.False(t, refreshed)

	clock.Advance(4 * time.Hour)
	renewed, refreshed, err := sessions.Refresh(ctx, issued.Session)
	require.NoError(t, err)
	require.True(t, refreshed)
	assert.Equal(t, clock.Now().Add(10*time.Hour), renewed.Session.ExpiresAt)

	clock.Advance(8 * time.Hour)
	_, err = sessions.Resolve(ctx, issued.Token)
	assert.True(t, account.IsKind(err, account.TextCodeSessionInvalid))

	session, err := sessions.Resolve(ctx, renewed.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.Session.ID, session.ID)
}

func TestSessionsRefreshDisabled(t *testing.T) {
	sessions, _, clock := newTestSessions(account.SessionSettings{
		Expiration: time.Hour,
	})

	issued, err := sessions.Issue(context.Background(), &account.Identity{ID: uuid.New()}, false)
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	renewed, refreshed, err := sessions.Refresh(context.Background(), issued.Session)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Nil(t, renewed)
}

func TestMemorySessionStoreSingleSessionPerIdentity(t *testing.T) {
	store := account.NewMemorySessionStore()
	ctx := context.Background()
	now := time.Now()

	first := &account.Session{ID: "s1", IdentityID: "alice", ExpiresAt: now.Add(time.Hour)}
	second := &account.Session{ID: "s2", IdentityID: "alice", ExpiresAt: now.Add(time.Hour)}

	require.NoError(t, store.Put(ctx, first))
	require.NoError(t, store.Put(ctx, second))

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, account.ErrSessionNotFound)

	got, err := store.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.IdentityID)

	require.NoError(t, store.Delete(ctx, "s2"))
	assert.ErrorIs(t, store.Touch(ctx, "s2", now), account.ErrSessionNotFound)
	assert.NoError(t, store.DeleteByIdentity(ctx, "alice"))
}

func TestMemorySessionStoreExpires(t *testing.T) {
	clock := newTestClock()
	store := account.NewMemorySessionStore().WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &account.Session{ID: "s1", IdentityID: "bob", ExpiresAt: clock.Now().Add(time.Minute)}))

	clock.Advance(time.Minute)
	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, account.ErrSessionNotFound)
}
