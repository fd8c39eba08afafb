package account_test

import (
	"context"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureAdminIdempotent(t *testing.T) {
	clock := newTestClock()
	repo := newTestRepo(t, clock)
	ctx := context.Background()

	seed := account.DefaultAdminSeed()

	first, err := account.EnsureAdmin(ctx, repo, seed, nil)
	require.NoError(t, err)
	assert.True(t, first.EmailConfirmed)
	assert.Equal(t, "admin", first.Username)

	second, err := account.EnsureAdmin(ctx, repo, seed, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	roles := account.NewRoleAdmin(repo)
	ok, err := roles.IsInRole(ctx, first.ID.String(), account.AdminRoleName)
	require.NoError(t, err)
	assert.True(t, ok)

	listed, err := roles.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestEnsureAdminConfirmsExisting(t *testing.T) {
	clock := newTestClock()
	repo := newTestRepo(t, clock)
	ctx := context.Background()

	existing := createIdentity(t, repo, "root")
	require.False(t, existing.EmailConfirmed)

	admin, err := account.EnsureAdmin(ctx, repo, account.AdminSeed{
		Email:    existing.Email,
		Password: "ignored1",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, admin.ID)

	stored, err := repo.Identities().FindByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailConfirmed)
}

func TestEnsureAdminHashid(t *testing.T) {
	clock := newTestClock()
	repo := newTestRepo(t, clock)

	seed := account.DefaultAdminSeed()
	seed.UseHashid = true

	admin, err := account.EnsureAdmin(context.Background(), repo, seed, nil)
	require.NoError(t, err)

	want, err := hashid.NewUUID("admin@mcvz.com")
	require.NoError(t, err)
	assert.Equal(t, want, admin.ID)
}

func TestEnsureAdminRequiresCredentials(t *testing.T) {
	repo := newTestRepo(t, newTestClock())

	_, err := account.EnsureAdmin(context.Background(), repo, account.AdminSeed{Username: "admin"}, nil)
	assert.True(t, account.IsKind(err, account.TextCodeInvalidRequest))
}
