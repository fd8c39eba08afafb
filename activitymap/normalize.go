package activitymap

import (
	"strings"
	"time"

	account "github.com/goliatone/go-account"
)

const (
	MetadataKeyActorType = "actor_type"
	MetadataKeyFromState = "from_state"
	MetadataKeyToState   = "to_state"
)

const (
	ObjectTypeIdentity = "identity"
	ObjectTypeRole     = "role"
)

const (
	defaultChannel = "account"
	defaultActorID = "system"
)

// Record is the flat activity shape handed to audit feeds and log sinks.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Fields flattens the record into logger key value pairs
func (r Record) Fields() []any {
	fields := []any{
		"verb", r.Verb,
		"actor_id", r.ActorID,
		"object_type", r.ObjectType,
		"object_id", r.ObjectID,
	}
	if state, ok := r.Metadata[MetadataKeyToState]; ok {
		fields = append(fields, MetadataKeyToState, state)
	}
	return fields
}

type Option func(*options)

type options struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when the event carries none
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Normalize maps an account activity event to a Record. Role events use
// the role id as object, everything else the identity.
func Normalize(event account.ActivityEvent, opts ...Option) Record {
	o := options{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}

	objectType, objectID := resolveObject(event)

	return Record{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), strings.TrimSpace(event.IdentityID), o.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    o.channel,
		Metadata:   metadataFor(event),
		OccurredAt: occurredAt.UTC(),
	}
}

func resolveObject(event account.ActivityEvent) (string, string) {
	if strings.HasPrefix(string(event.EventType), "role.") {
		id, _ := event.Metadata["role_id"].(string)
		return ObjectTypeRole, strings.TrimSpace(id)
	}
	return ObjectTypeIdentity, strings.TrimSpace(event.IdentityID)
}

func metadataFor(event account.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+3)
	for key, value := range event.Metadata {
		out[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := out[MetadataKeyActorType]; !exists {
			out[MetadataKeyActorType] = actorType
		}
	}
	if event.FromState != "" {
		out[MetadataKeyFromState] = string(event.FromState)
	}
	if event.ToState != "" {
		out[MetadataKeyToState] = string(event.ToState)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
