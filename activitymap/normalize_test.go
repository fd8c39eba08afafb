package activitymap_test

import (
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/goliatone/go-account/activitymap"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeIdentityEvent(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	out := activitymap.Normalize(account.ActivityEvent{
		EventType:  account.ActivityEventLockedOut,
		IdentityID: "user-100",
		FromState:  account.StateActive,
		ToState:    account.StateLocked,
		Metadata:   map[string]any{"attempts": 5},
		OccurredAt: ts,
	})

	assert.Equal(t, "user-100", out.ActorID)
	assert.Equal(t, string(account.ActivityEventLockedOut), out.Verb)
	assert.Equal(t, activitymap.ObjectTypeIdentity, out.ObjectType)
	assert.Equal(t, "user-100", out.ObjectID)
	assert.Equal(t, "account", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))
	assert.Equal(t, 5, out.Metadata["attempts"])
	assert.Equal(t, "active", out.Metadata[activitymap.MetadataKeyFromState])
	assert.Equal(t, "locked", out.Metadata[activitymap.MetadataKeyToState])
}

func TestNormalizeRoleEvent(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(account.ActivityEvent{
		EventType: account.ActivityEventRoleRenamed,
		Actor:     account.ActorRef{ID: "admin-42", Type: "identity"},
		Metadata:  map[string]any{"role_id": "role-7", "name": "Writers"},
	}, activitymap.WithChannel("audit"))

	assert.Equal(t, "admin-42", out.ActorID)
	assert.Equal(t, activitymap.ObjectTypeRole, out.ObjectType)
	assert.Equal(t, "role-7", out.ObjectID)
	assert.Equal(t, "audit", out.Channel)
	assert.Equal(t, "identity", out.Metadata[activitymap.MetadataKeyActorType])
	assert.False(t, out.OccurredAt.IsZero())
}

func TestNormalizeFallbacks(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	out := activitymap.Normalize(account.ActivityEvent{
		EventType: account.ActivityEventRoleCreated,
	}, activitymap.WithActorFallback("scheduler"), activitymap.WithClock(func() time.Time { return fixed }))

	assert.Equal(t, "scheduler", out.ActorID)
	assert.Empty(t, out.ObjectID)
	assert.Nil(t, out.Metadata)
	assert.Equal(t, fixed, out.OccurredAt)
}

func TestRecordFields(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(account.ActivityEvent{
		EventType:  account.ActivityEventEmailConfirmed,
		IdentityID: "user-1",
		ToState:    account.StateActive,
	})

	assert.Equal(t, []any{
		"verb", string(account.ActivityEventEmailConfirmed),
		"actor_id", "user-1",
		"object_type", activitymap.ObjectTypeIdentity,
		"object_id", "user-1",
		activitymap.MetadataKeyToState, "active",
	}, out.Fields())
}
