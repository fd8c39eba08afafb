package account

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PurposeClaims are the claims carried by confirmation and reset tokens
type PurposeClaims struct {
	jwt.RegisteredClaims
	Purpose TokenPurpose `json:"purpose"`
}

// TokenIssuer mints purpose-scoped tokens. Every token is a signed JWT with
// a ledger row keyed by its jti, which makes tokens single use and lets a
// newer token supersede older ones.
type TokenIssuer struct {
	repo   RepositoryManager
	cfg    TokenConfig
	now    func() time.Time
	logger Logger
}

func NewTokenIssuer(repo RepositoryManager, cfg TokenConfig) *TokenIssuer {
	return &TokenIssuer{
		repo:   repo,
		cfg:    cfg,
		now:    time.Now,
		logger: defLogger{},
	}
}

// WithClock injects the time source used for issuing and validating
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	if now != nil {
		t.now = now
	}
	return t
}

func (t *TokenIssuer) WithLogger(logger Logger) *TokenIssuer {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// TTL returns the lifetime of tokens minted for purpose
func (t *TokenIssuer) TTL(purpose TokenPurpose) time.Duration {
	var ttl time.Duration
	switch purpose {
	case PurposeEmailConfirmation:
		ttl = t.cfg.GetConfirmationTTL()
		if ttl <= 0 {
			ttl = 7 * 24 * time.Hour
		}
	case PurposePasswordReset:
		ttl = t.cfg.GetResetTTL()
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
	}
	return ttl
}

// Issue supersedes any outstanding token for identity and purpose and
// returns a new one.
func (t *TokenIssuer) Issue(ctx context.Context, identityID uuid.UUID, purpose TokenPurpose) (string, error) {
	var token string
	err := t.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		token, err = t.IssueTx(ctx, tx, identityID, purpose)
		return err
	})
	if err != nil {
		return "", finalizeError(err, "failed to issue token")
	}
	return token, nil
}

func (t *TokenIssuer) IssueTx(ctx context.Context, tx bun.IDB, identityID uuid.UUID, purpose TokenPurpose) (string, error) {
	ttl := t.TTL(purpose)
	if ttl == 0 {
		return "", goerrors.New("unknown token purpose", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"purpose": purpose})
	}

	issuedAt := t.now()
	expiresAt := issuedAt.Add(ttl)

	superseded, err := t.repo.Tokens().SupersedeTx(ctx, tx, identityID, purpose, issuedAt)
	if err != nil {
		return "", err
	}
	if superseded > 0 {
		t.logger.Debug("superseded outstanding tokens", "identity_id", identityID, "purpose", purpose, "count", superseded)
	}

	ledger := &AccountToken{
		ID:         uuid.New(),
		IdentityID: identityID,
		Purpose:    purpose,
		ExpiresAt:  expiresAt,
		CreatedAt:  &issuedAt,
	}

	if _, err := t.repo.Tokens().InsertTx(ctx, tx, ledger); err != nil {
		return "", err
	}

	claims := &PurposeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ledger.ID.String(),
			Issuer:    t.cfg.GetIssuer(),
			Subject:   identityID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Purpose: purpose,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(t.cfg.GetSigningKey()))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Validate checks raw against identity and purpose without mutating any
// state. It returns TOKEN_MALFORMED, TOKEN_PURPOSE_MISMATCH or TOKEN_EXPIRED.
func (t *TokenIssuer) Validate(ctx context.Context, raw string, identityID uuid.UUID, purpose TokenPurpose) (*AccountToken, error) {
	tok, err := t.ValidateTx(ctx, t.repo.DB(), raw, identityID, purpose)
	if err != nil {
		return nil, finalizeError(err, "failed to validate token")
	}
	return tok, nil
}

func (t *TokenIssuer) ValidateTx(ctx context.Context, tx bun.IDB, raw string, identityID uuid.UUID, purpose TokenPurpose) (*AccountToken, error) {
	claims, expired, err := t.parse(raw)
	if err != nil {
		return nil, err
	}

	if claims.Subject != identityID.String() || claims.Purpose != purpose {
		return nil, ErrTokenPurposeMismatch()
	}

	if expired {
		return nil, ErrTokenExpired()
	}

	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, ErrTokenMalformed()
	}

	ledger, err := t.repo.Tokens().FindTx(ctx, tx, jti)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrTokenMalformed()
		}
		return nil, err
	}

	if ledger.IdentityID != identityID || ledger.Purpose != purpose {
		return nil, ErrTokenPurposeMismatch()
	}

	if ledger.Consumed() || !t.now().Before(ledger.ExpiresAt) {
		return nil, ErrTokenExpired()
	}

	return ledger, nil
}

// ConsumeTx marks the ledger row used. A second consumption reports
// TOKEN_EXPIRED.
func (t *TokenIssuer) ConsumeTx(ctx context.Context, tx bun.IDB, token *AccountToken) error {
	ok, err := t.repo.Tokens().ConsumeTx(ctx, tx, token.ID, t.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenExpired()
	}
	now := t.now()
	token.ConsumedAt = &now
	return nil
}

func (t *TokenIssuer) Consume(ctx context.Context, token *AccountToken) error {
	return finalizeError(t.ConsumeTx(ctx, t.repo.DB(), token), "failed to consume token")
}

// PurgeExpired removes ledger rows past their expiration
func (t *TokenIssuer) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := t.repo.Tokens().PurgeExpired(ctx, t.now())
	if err != nil {
		return 0, storeError(err, "failed to purge expired tokens")
	}
	return n, nil
}

func (t *TokenIssuer) parse(raw string) (*PurposeClaims, bool, error) {
	if raw == "" {
		return nil, false, ErrTokenMalformed()
	}

	claims := &PurposeClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithIssuedAt(),
	)

	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return []byte(t.cfg.GetSigningKey()), nil
	})

	switch {
	case err == nil:
		return claims, false, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, true, nil
	default:
		t.logger.Debug("token parse failed", "error", err)
		return nil, false, ErrTokenMalformed()
	}
}
