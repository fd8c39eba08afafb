package account_test

import (
	"context"
	"sync"
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createIdentity(t *testing.T, repo account.RepositoryManager, username string) *account.Identity {
	t.Helper()
	identity, err := repo.Identities().Create(context.Background(), &account.Identity{
		Username: username,
		Email:    username + "@x.com",
	}, "secret1")
	require.NoError(t, err)
	return identity
}

func TestLockoutPolicyRecordAndReset(t *testing.T) {
	clock := newTestClock()
	repo := newTestRepo(t, clock)
	ctx := context.Background()

	policy := account.NewLockoutPolicy(repo, account.LockoutRules{MaxFailedAttempts: 3, Duration: time.Minute}).
		WithClock(clock.Now)

	identity := createIdentity(t, repo, "alice")

	require.NoError(t, policy.RecordFailure(ctx, identity))
	require.NoError(t, policy.RecordFailure(ctx, identity))
	locked, _ := policy.Check(identity, clock.Now())
	assert.False(t, locked)

	require.NoError(t, policy.RecordFailure(ctx, identity))
	locked, remaining := policy.Check(identity, clock.Now())
	assert.True(t, locked)
	assert.Equal(t, time.Minute, remaining)

	stored, err := repo.Identities().FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.FailedAttempts)
	require.NotNil(t, stored.LockoutEnd)

	require.NoError(t, policy.RecordFailure(ctx, stored))
	assert.Equal(t, 3, stored.FailedAttempts, "failures inside the window are not counted")

	require.NoError(t, policy.Reset(ctx, stored))
	assert.Equal(t, 0, stored.FailedAttempts)
	assert.Nil(t, stored.LockoutEnd)

	reloaded, err := repo.Identities().FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.FailedAttempts)
	assert.Nil(t, reloaded.LockoutEnd)
}

func TestLockoutPolicyStaleCopyRetries(t *testing.T) {
	clock := newTestClock()
	repo := newTestRepo(t, clock)
	ctx := context.Background()

	policy := account.NewLockoutPolicy(repo, account.LockoutRules{MaxFailedAttempts: 10, Duration: time.Minute}).
		WithClock(clock.Now)

	identity := createIdentity(t, repo, "alice")
	stale := *identity

	require.NoError(t, policy.RecordFailure(ctx, identity))
	require.NoError(t, policy.RecordFailure(ctx, &stale))

	stored, err := repo.Identities().FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.FailedAttempts)
}

func TestLockoutPolicyConcurrentFailures(t *testing.T) {
	clock := newTestClock()
	repo := newTestRepo(t, clock)
	ctx := context.Background()

	policy := account.NewLockoutPolicy(repo, account.LockoutRules{MaxFailedAttempts: 10, Duration: time.Minute}).
		WithClock(clock.Now)

	identity := createIdentity(t, repo, "alice")

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		cp := *identity
		wg.Add(1)
		go func(ident *account.Identity) {
			defer wg.Done()
			errs <- policy.RecordFailure(ctx, ident)
		}(&cp)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := repo.Identities().FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, stored.FailedAttempts)
}

func TestLockoutPolicyDefaults(t *testing.T) {
	rules := account.DefaultLockoutRules()
	assert.Equal(t, 5, rules.GetMaxFailedAttempts())
	assert.Equal(t, 5*time.Minute, rules.GetLockoutDuration())
}

func TestLockoutPolicyResetAfterSignInKeepsConcurrentLockout(t *testing.T) {
	clock := newTestClock()
	repo := newTestRepo(t, clock)
	ctx := context.Background()

	policy := account.NewLockoutPolicy(repo, account.LockoutRules{MaxFailedAttempts: 3, Duration: time.Minute}).
		WithClock(clock.Now)

	identity := createIdentity(t, repo, "alice")
	clean := *identity
	require.NoError(t, policy.RecordFailure(ctx, identity))
	counted := *identity

	for name, stale := range map[string]account.Identity{"clean copy": clean, "copy with failures": counted} {
		t.Run(name, func(t *testing.T) {
			until := clock.Now().Add(time.Minute)
			lockRow(t, repo.DB(), identity.ID, 3, until)

			err := policy.ResetAfterSignIn(ctx, &stale)
			require.Error(t, err)
			assert.True(t, account.IsKind(err, account.TextCodeLockedOut))

			remaining, ok := account.LockoutRemaining(err)
			require.True(t, ok)
			assert.Equal(t, time.Minute, remaining)

			stored, err := repo.Identities().FindByID(ctx, identity.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, stored.FailedAttempts)
			require.NotNil(t, stored.LockoutEnd)
			assert.True(t, stored.LockoutEnd.Equal(until))
		})
	}
}

func TestLockoutPolicyResetFromStaleCopy(t *testing.T) {
	clock := newTestClock()
	repo := newTestRepo(t, clock)
	ctx := context.Background()

	policy := account.NewLockoutPolicy(repo, account.LockoutRules{MaxFailedAttempts: 3, Duration: time.Minute}).
		WithClock(clock.Now)

	identity := createIdentity(t, repo, "alice")
	stale := *identity
	lockRow(t, repo.DB(), identity.ID, 3, clock.Now().Add(time.Minute))

	require.NoError(t, policy.Reset(ctx, &stale))

	stored, err := repo.Identities().FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedAttempts)
	assert.Nil(t, stored.LockoutEnd)
}
