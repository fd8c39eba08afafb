package account

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Session is the server side record of a signed-in identity
type Session struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	Persistent bool      `json:"persistent"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at now
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

func (s *Session) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// SessionStore keeps active sessions. Each identity has at most one.
type SessionStore interface {
	Put(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByIdentity(ctx context.Context, identityID string) error
	Touch(ctx context.Context, id string, expiresAt time.Time) error
}

// MemorySessionStore is a process local SessionStore
type MemorySessionStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	byIdentity map[string]string
	now        func() time.Time
}

var _ SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:   map[string]*Session{},
		byIdentity: map[string]string{},
		now:        time.Now,
	}
}

// WithClock injects the time source used to expire sessions
func (m *MemorySessionStore) WithClock(now func() time.Time) *MemorySessionStore {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *MemorySessionStore) Put(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byIdentity[session.IdentityID]; ok && prev != session.ID {
		delete(m.sessions, prev)
	}

	cp := *session
	m.sessions[session.ID] = &cp
	m.byIdentity[session.IdentityID] = session.ID
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok || session.Expired(m.now()) {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[id]; ok {
		if m.byIdentity[session.IdentityID] == id {
			delete(m.byIdentity, session.IdentityID)
		}
		delete(m.sessions, id)
	}
	return nil
}

func (m *MemorySessionStore) DeleteByIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byIdentity[identityID]; ok {
		delete(m.sessions, id)
		delete(m.byIdentity, identityID)
	}
	return nil
}

func (m *MemorySessionStore) Touch(_ context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.ExpiresAt = expiresAt
	return nil
}
