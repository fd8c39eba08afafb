package account_test

import (
	"context"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminActor = account.ActorRef{ID: "admin-1", Type: "user"}

func newRoleAdmin(h *harness) *account.RoleAdmin {
	return account.NewRoleAdmin(h.repo).
		WithActivitySink(h.sink).
		WithClock(h.clock.Now)
}

func TestRoleAdminCreate(t *testing.T) {
	h := newHarness(t)
	roles := newRoleAdmin(h)
	ctx := context.Background()

	role, err := roles.Create(ctx, adminActor, account.RoleMessage{Name: " Editors "})
	require.NoError(t, err)
	assert.Equal(t, "Editors", role.Name)
	assert.NotEqual(t, uuid.Nil, role.ID)

	_, err = roles.Create(ctx, adminActor, account.RoleMessage{Name: "editors"})
	assert.True(t, account.IsKind(err, account.TextCodeDuplicateRoleName))

	_, err = roles.Create(ctx, adminActor, account.RoleMessage{})
	assert.True(t, account.IsKind(err, account.TextCodeInvalidRequest))

	listed, err := roles.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	evt, ok := h.sink.Last(account.ActivityEventRoleCreated)
	require.True(t, ok)
	assert.Equal(t, adminActor, evt.Actor)
	assert.Equal(t, "Editors", evt.Metadata["name"])
}

func TestRoleAdminEdit(t *testing.T) {
	h := newHarness(t)
	roles := newRoleAdmin(h)
	ctx := context.Background()

	role, err := roles.Create(ctx, adminActor, account.RoleMessage{Name: "Editors"})
	require.NoError(t, err)
	_, err = roles.Create(ctx, adminActor, account.RoleMessage{Name: "Viewers"})
	require.NoError(t, err)

	renamed, err := roles.Edit(ctx, adminActor, role.ID.String(), account.RoleMessage{Name: "Writers"})
	require.NoError(t, err)
	assert.Equal(t, "Writers", renamed.Name)

	evt, ok := h.sink.Last(account.ActivityEventRoleRenamed)
	require.True(t, ok)
	assert.Equal(t, "Editors", evt.Metadata["old_name"])
	assert.Equal(t, "Writers", evt.Metadata["name"])

	before := len(h.sink.Types())
	_, err = roles.Edit(ctx, adminActor, role.ID.String(), account.RoleMessage{Name: "Writers"})
	require.NoError(t, err)
	assert.Len(t, h.sink.Types(), before, "same name is not a rename")

	_, err = roles.Edit(ctx, adminActor, role.ID.String(), account.RoleMessage{Name: "viewers"})
	assert.True(t, account.IsKind(err, account.TextCodeDuplicateRoleName))

	_, err = roles.Edit(ctx, adminActor, uuid.NewString(), account.RoleMessage{Name: "Ghosts"})
	assert.True(t, account.IsKind(err, account.TextCodeRoleNotFound))

	_, err = roles.Edit(ctx, adminActor, "not-a-uuid", account.RoleMessage{Name: "Ghosts"})
	assert.True(t, account.IsKind(err, account.TextCodeRoleNotFound))

	details, err := roles.Get(ctx, role.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Writers", details.Role.Name)
	assert.NotNil(t, details.Role.CreatedAt)
}

func TestRoleAdminMembership(t *testing.T) {
	h := newHarness(t)
	roles := newRoleAdmin(h)
	ctx := context.Background()

	alice := h.registerConfirmed(t, "alice", "secret1")
	bob := h.registerConfirmed(t, "bob", "secret1")

	role, err := roles.Create(ctx, adminActor, account.RoleMessage{Name: "Editors"})
	require.NoError(t, err)

	require.NoError(t, roles.Assign(ctx, adminActor, role.ID.String(), alice.ID.String()))
	require.NoError(t, roles.Assign(ctx, adminActor, role.ID.String(), alice.ID.String()))
	require.NoError(t, roles.Assign(ctx, adminActor, role.ID.String(), bob.ID.String()))

	members, err := roles.Members(ctx, role.ID.String())
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Username)
	assert.Equal(t, "bob", members[1].Username)

	ok, err := roles.IsInRole(ctx, alice.ID.String(), "editors")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, roles.Unassign(ctx, adminActor, role.ID.String(), alice.ID.String()))

	ok, err = roles.IsInRole(ctx, alice.ID.String(), "Editors")
	require.NoError(t, err)
	assert.False(t, ok)

	assigned, err := roles.RolesOf(ctx, bob.ID.String())
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "Editors", assigned[0].Name)

	err = roles.Assign(ctx, adminActor, role.ID.String(), uuid.NewString())
	assert.True(t, account.IsKind(err, account.TextCodeUserNotFound))

	err = roles.Assign(ctx, adminActor, uuid.NewString(), bob.ID.String())
	assert.True(t, account.IsKind(err, account.TextCodeRoleNotFound))

	_, ok = h.sink.Last(account.ActivityEventRoleUnassigned)
	assert.True(t, ok)
}

func TestRoleAdminDelete(t *testing.T) {
	h := newHarness(t)
	roles := newRoleAdmin(h)
	ctx := context.Background()

	alice := h.registerConfirmed(t, "alice", "secret1")

	role, err := roles.Create(ctx, adminActor, account.RoleMessage{Name: "Editors"})
	require.NoError(t, err)
	require.NoError(t, roles.Assign(ctx, adminActor, role.ID.String(), alice.ID.String()))

	require.NoError(t, roles.Delete(ctx, adminActor, role.ID.String()))

	_, err = roles.Get(ctx, role.ID.String())
	assert.True(t, account.IsKind(err, account.TextCodeRoleNotFound))

	assigned, err := roles.RolesOf(ctx, alice.ID.String())
	require.NoError(t, err)
	assert.Empty(t, assigned)

	err = roles.Delete(ctx, adminActor, role.ID.String())
	assert.True(t, account.IsKind(err, account.TextCodeRoleNotFound))

	evt, ok := h.sink.Last(account.ActivityEventRoleDeleted)
	require.True(t, ok)
	assert.Equal(t, role.ID.String(), evt.Metadata["role_id"])
}

func TestRoleAdminSystemActor(t *testing.T) {
	h := newHarness(t)
	roles := newRoleAdmin(h)

	_, err := roles.Create(context.Background(), account.ActorRef{}, account.RoleMessage{Name: "Auditors"})
	require.NoError(t, err)

	evt, ok := h.sink.Last(account.ActivityEventRoleCreated)
	require.True(t, ok)
	assert.Equal(t, account.SystemActor, evt.Actor)
}
