package account

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered             ActivityEventType = "account.registered"
	ActivityEventEmailConfirmed         ActivityEventType = "account.email.confirmed"
	ActivityEventConfirmationResent     ActivityEventType = "account.email.confirmation_resent"
	ActivityEventLoginSuccess           ActivityEventType = "account.login.success"
	ActivityEventLoginFailure           ActivityEventType = "account.login.failure"
	ActivityEventLockedOut              ActivityEventType = "account.locked_out"
	ActivityEventLogout                 ActivityEventType = "account.logout"
	ActivityEventPasswordResetRequested ActivityEventType = "account.password.reset_requested"
	ActivityEventPasswordResetCompleted ActivityEventType = "account.password.reset"
	ActivityEventRoleCreated            ActivityEventType = "role.created"
	ActivityEventRoleRenamed            ActivityEventType = "role.renamed"
	ActivityEventRoleDeleted            ActivityEventType = "role.deleted"
	ActivityEventRoleAssigned           ActivityEventType = "role.assigned"
	ActivityEventRoleUnassigned         ActivityEventType = "role.unassigned"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// SystemActor is used for actions not triggered by a signed in identity
var SystemActor = ActorRef{ID: "system", Type: "system"}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	IdentityID string
	FromState  AccountState
	ToState    AccountState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity is best effort, sink failures are only logged.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{ID: event.IdentityID, Type: "identity"}
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		resolveLogger(logger).Warn("activity sink error", "event", event.EventType, "error", err)
	}
}
