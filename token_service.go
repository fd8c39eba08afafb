package account

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionClaims are the claims carried by session tokens
type SessionClaims struct {
	jwt.RegisteredClaims
	Persistent bool `json:"persistent,omitempty"`
}

// IssuedSession pairs a session with its signed token
type IssuedSession struct {
	Session *Session
	Token   string
}

// SessionManager issues and resolves sign-in sessions
type SessionManager interface {
	Issue(ctx context.Context, identity *Identity, persistent bool) (*IssuedSession, error)
	Resolve(ctx context.Context, token string) (*Session, error)
	Refresh(ctx context.Context, session *Session) (*IssuedSession, bool, error)
	Revoke(ctx context.Context, token string) error
	RevokeIdentity(ctx context.Context, identityID string) error
}

// JWTSessions signs session tokens with HS256 and keeps the session record
// in a SessionStore, so a token stops working as soon as its record is gone.
type JWTSessions struct {
	tokens TokenConfig
	cfg    SessionConfig
	store  SessionStore
	now    func() time.Time
	logger Logger
}

var _ SessionManager = (*JWTSessions)(nil)

func NewJWTSessions(tokens TokenConfig, cfg SessionConfig, store SessionStore) *JWTSessions {
	if cfg == nil {
		cfg = DefaultSessionSettings()
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	return &JWTSessions{
		tokens: tokens,
		cfg:    cfg,
		store:  store,
		now:    time.Now,
		logger: defLogger{},
	}
}

func (s *JWTSessions) WithClock(now func() time.Time) *JWTSessions {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *JWTSessions) WithLogger(logger Logger) *JWTSessions {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *JWTSessions) expiration() time.Duration {
	if exp := s.cfg.GetExpiration(); exp > 0 {
		return exp
	}
	return 30 * 24 * time.Hour
}

// Issue creates a new session for identity. Callers revoke any previous
// session first, see Lifecycle.Login.
func (s *JWTSessions) Issue(ctx context.Context, identity *Identity, persistent bool) (*IssuedSession, error) {
	if identity == nil {
		return nil, errors.New("identity is required", errors.CategoryBadInput)
	}

	now := s.now()
	session := &Session{
		ID:         uuid.NewString(),
		IdentityID: identity.ID.String(),
		Persistent: persistent,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.expiration()),
	}

	token, err := s.sign(session)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, session); err != nil {
		return nil, ErrServiceUnavailable(err, "failed to store session")
	}

	return &IssuedSession{Session: session, Token: token}, nil
}

// Resolve validates token and returns the stored session
func (s *JWTSessions) Resolve(ctx context.Context, token string) (*Session, error) {
	claims, err := s.parse(token, true)
	if err != nil {
		return nil, err
	}

	session, err := s.store.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionInvalid()
		}
		return nil, ErrServiceUnavailable(err, "failed to load session")
	}

	if session.IdentityID != claims.Subject || session.Expired(s.now()) {
		return nil, ErrSessionInvalid()
	}

	return session, nil
}

// Refresh extends a sliding session once more than half of its lifetime
// has passed. The returned bool reports whether a new token was minted.
func (s *JWTSessions) Refresh(ctx context.Context, session *Session) (*IssuedSession, bool, error) {
	if session == nil || !s.cfg.GetSlidingExpiration() {
		return nil, false, nil
	}

	now := s.now()
	lifetime := s.expiration()
	if session.ExpiresAt.Sub(now) > lifetime/2 {
		return nil, false, nil
	}

	renewed := *session
	renewed.ExpiresAt = now.Add(lifetime)

	if err := s.store.Touch(ctx, renewed.ID, renewed.ExpiresAt); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, false, ErrSessionInvalid()
		}
		return nil, false, ErrServiceUnavailable(err, "failed to extend session")
	}

	token, err := s.sign(&renewed)
	if err != nil {
		return nil, false, err
	}

	return &IssuedSession{Session: &renewed, Token: token}, true, nil
}

// Revoke deletes the session behind token. Expired tokens are accepted.
func (s *JWTSessions) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token, false)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, claims.ID); err != nil {
		return ErrServiceUnavailable(err, "failed to revoke session")
	}
	return nil
}

func (s *JWTSessions) RevokeIdentity(ctx context.Context, identityID string) error {
	if err := s.store.DeleteByIdentity(ctx, identityID); err != nil {
		return ErrServiceUnavailable(err, "failed to revoke identity sessions")
	}
	return nil
}

func (s *JWTSessions) sign(session *Session) (string, error) {
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Issuer:    s.tokens.GetIssuer(),
			Subject:   session.IdentityID,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Persistent: session.Persistent,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.tokens.GetSigningKey()))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session")
	}
	return signed, nil
}

func (s *JWTSessions) parse(token string, validate bool) (*SessionClaims, error) {
	if token == "" {
		return nil, ErrSessionInvalid()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if !validate {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.tokens.GetSigningKey()), nil
	}, opts...)

	if err != nil || claims.ID == "" {
		s.logger.Debug("session token rejected", "error", err)
		return nil, ErrSessionInvalid()
	}

	return claims, nil
}
