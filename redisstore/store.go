// Package redisstore keeps account sessions in Redis so several server
// processes can share them.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "account:"

// Config holds the redis connection settings
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store is a SessionStore backed by redis. Sessions are stored as JSON
// under <prefix>session:<id> and indexed by identity under
// <prefix>identity:<identityID>. Both keys expire with the session.
type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var _ account.SessionStore = (*Store)(nil)

// New connects to redis and checks the connection
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, account.ErrServiceUnavailable(err, "failed to connect to redis")
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock injects the time source used to compute key TTLs
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Put(ctx context.Context, session *account.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	body, err := json.Marshal(session)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session")
	}

	prev, err := s.client.Get(ctx, s.identityKey(session.IdentityID)).Result()
	if err != nil && err != redis.Nil {
		return account.ErrServiceUnavailable(err, "failed to read session index")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != "" && prev != session.ID {
			pipe.Del(ctx, s.sessionKey(prev))
		}
		pipe.Set(ctx, s.sessionKey(session.ID), body, ttl)
		pipe.Set(ctx, s.identityKey(session.IdentityID), session.ID, ttl)
		return nil
	})
	if err != nil {
		return account.ErrServiceUnavailable(err, "failed to store session")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*account.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, account.ErrSessionNotFound
	}
	if err != nil {
		return nil, account.ErrServiceUnavailable(err, "failed to read session")
	}

	session := &account.Session{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode session")
	}

	if session.Expired(s.now()) {
		return nil, account.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err == account.ErrSessionNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		return account.ErrServiceUnavailable(err, "failed to delete session")
	}

	// only drop the index if it still points at this session
	current, err := s.client.Get(ctx, s.identityKey(session.IdentityID)).Result()
	if err == nil && current == id {
		s.client.Del(ctx, s.identityKey(session.IdentityID))
	}
	return nil
}

func (s *Store) DeleteByIdentity(ctx context.Context, identityID string) error {
	id, err := s.client.Get(ctx, s.identityKey(identityID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return account.ErrServiceUnavailable(err, "failed to read session index")
	}

	if err := s.client.Del(ctx, s.sessionKey(id), s.identityKey(identityID)).Err(); err != nil {
		return account.ErrServiceUnavailable(err, "failed to delete session")
	}
	return nil
}

func (s *Store) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	session.ExpiresAt = expiresAt
	return s.Put(ctx, session)
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *Store) identityKey(identityID string) string {
	return s.prefix + "identity:" + identityID
}
