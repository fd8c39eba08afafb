package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateCredentialSQL replaces the password hash and rotates the stamp
var UpdateCredentialSQL = `UPDATE "identities"
SET
	"password_hash" = ?,
	"concurrency_stamp" = ?,
	"updated_at" = ?
WHERE
	"id" = ?;`

// ConfirmEmailSQL marks the email address as confirmed
var ConfirmEmailSQL = `UPDATE "identities"
SET
	"email_confirmed" = TRUE,
	"concurrency_stamp" = ?,
	"updated_at" = ?
WHERE
	"id" = ?;`

// TrackLoginSQL records the last successful sign-in
var TrackLoginSQL = `UPDATE "identities"
SET
	"last_login_at" = ?
WHERE
	"id" = ?;`

// Identities is the credential store
type Identities interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Identity, error)
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Identity, error)

	Create(ctx context.Context, identity *Identity, plaintext string) (*Identity, error)
	CreateTx(ctx context.Context, tx bun.IDB, identity *Identity, plaintext string) (*Identity, error)
	UpdateCredential(ctx context.Context, identity *Identity, plaintext string) error
	UpdateCredentialTx(ctx context.Context, tx bun.IDB, identity *Identity, plaintext string) error
	VerifyCredential(identity *Identity, plaintext string) (bool, error)

	ConfirmEmail(ctx context.Context, id uuid.UUID) error
	ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	CompareAndSwapLockoutTx(ctx context.Context, tx bun.IDB, identity *Identity, failed int, lockoutEnd *time.Time) (bool, error)
	TrackLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	TrackLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
}

type identities struct {
	repo   repository.Repository[*Identity]
	db     *bun.DB
	hasher PasswordHasher
	policy PasswordPolicy
	now    func() time.Time
}

var _ Identities = (*identities)(nil)

// IdentitiesOption configures the credential store
type IdentitiesOption func(*identities)

// WithIdentitiesHasher overrides the bcrypt hasher
func WithIdentitiesHasher(hasher PasswordHasher) IdentitiesOption {
	return func(i *identities) {
		if hasher != nil {
			i.hasher = hasher
		}
	}
}

// WithIdentitiesPasswordPolicy sets the policy enforced on create and update
func WithIdentitiesPasswordPolicy(policy PasswordPolicy) IdentitiesOption {
	return func(i *identities) {
		i.policy = policy
	}
}

// WithIdentitiesClock injects a clock, mostly for tests
func WithIdentitiesClock(now func() time.Time) IdentitiesOption {
	return func(i *identities) {
		if now != nil {
			i.now = now
		}
	}
}

func NewIdentitiesRepository(db *bun.DB, opts ...IdentitiesOption) Identities {
	repo := repository.NewRepository[*Identity](db, repository.ModelHandlers[*Identity]{
		NewRecord: func() *Identity { return &Identity{} },
		GetID: func(i *Identity) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Identity, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	store := &identities{
		repo:   repo,
		db:     db,
		hasher: NewBcryptHasher(0),
		policy: NewPasswordPolicy(nil),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store
}

func (a *identities) FindByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *identities) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Identity, error) {
	return a.findBy(ctx, tx, "id", id)
}

func (a *identities) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *identities) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"email": email})
	}
	return a.repo.GetByIdentifierTx(ctx, tx, email)
}

func (a *identities) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	return a.FindByUsernameTx(ctx, a.db, username)
}

func (a *identities) FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Identity, error) {
	return a.findBy(ctx, tx, "username", strings.TrimSpace(username))
}

func (a *identities) findBy(ctx context.Context, tx bun.IDB, column string, value any) (*Identity, error) {
	record := &Identity{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

func (a *identities) Create(ctx context.Context, identity *Identity, plaintext string) (*Identity, error) {
	var out *Identity
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = a.CreateTx(ctx, tx, identity, plaintext)
		return err
	})
	return out, err
}

// CreateTx checks the password policy and uniqueness before inserting. Only
// the bcrypt hash of plaintext is stored.
func (a *identities) CreateTx(ctx context.Context, tx bun.IDB, identity *Identity, plaintext string) (*Identity, error) {
	prepareIdentityDefaults(identity)

	if err := a.policy.Check(plaintext); err != nil {
		return nil, err
	}

	if _, err := a.FindByEmailTx(ctx, tx, identity.Email); err == nil {
		return nil, ErrDuplicateEmail(identity.Email)
	} else if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	if _, err := a.FindByUsernameTx(ctx, tx, identity.Username); err == nil {
		return nil, ErrDuplicateUsername(identity.Username)
	} else if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	hash, err := a.hasher.HashPassword(plaintext)
	if err != nil {
		return nil, err
	}
	identity.PasswordHash = hash

	now := a.now()
	identity.CreatedAt = &now
	identity.UpdatedAt = &now

	created, err := a.repo.CreateTx(ctx, tx, identity)
	if err != nil {
		switch {
		case isUniqueViolation(err, "email"):
			return nil, ErrDuplicateEmail(identity.Email)
		case isUniqueViolation(err, "username"):
			return nil, ErrDuplicateUsername(identity.Username)
		}
		return nil, err
	}

	return created, nil
}

func (a *identities) UpdateCredential(ctx context.Context, identity *Identity, plaintext string) error {
	return a.UpdateCredentialTx(ctx, a.db, identity, plaintext)
}

func (a *identities) UpdateCredentialTx(ctx context.Context, tx bun.IDB, identity *Identity, plaintext string) error {
	if identity == nil {
		return repository.NewRecordNotFound()
	}

	if err := a.policy.Check(plaintext); err != nil {
		return err
	}

	hash, err := a.hasher.HashPassword(plaintext)
	if err != nil {
		return err
	}

	stamp := uuid.NewString()
	now := a.now()
	res, err := tx.NewRaw(UpdateCredentialSQL, hash, stamp, now, identity.ID).Exec(ctx)
	if err != nil {
		return err
	}

	if err := expectAffected(res, "id", identity.ID); err != nil {
		return err
	}

	identity.PasswordHash = hash
	identity.ConcurrencyStamp = stamp
	identity.UpdatedAt = &now

	return nil
}

// VerifyCredential reports whether plaintext matches the stored hash. A
// mismatch is not an error.
func (a *identities) VerifyCredential(identity *Identity, plaintext string) (bool, error) {
	if identity == nil || identity.PasswordHash == "" || plaintext == "" {
		return false, nil
	}
	err := a.hasher.ComparePasswordAndHash(plaintext, identity.PasswordHash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

func (a *identities) ConfirmEmail(ctx context.Context, id uuid.UUID) error {
	return a.ConfirmEmailTx(ctx, a.db, id)
}

func (a *identities) ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewRaw(ConfirmEmailSQL, uuid.NewString(), a.now(), id).Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "id", id)
}

// CompareAndSwapLockoutTx writes the lockout counters only if the stored
// concurrency stamp still matches identity. On success identity is updated
// in place with the new values and stamp.
func (a *identities) CompareAndSwapLockoutTx(ctx context.Context, tx bun.IDB, identity *Identity, failed int, lockoutEnd *time.Time) (bool, error) {
	stamp := uuid.NewString()
	now := a.now()

	res, err := tx.NewUpdate().
		Model((*Identity)(nil)).
		Set("failed_attempts = ?", failed).
		Set("lockout_end = ?", lockoutEnd).
		Set("concurrency_stamp = ?", stamp).
		Set("updated_at = ?", now).
		Where("id = ?", identity.ID).
		Where("concurrency_stamp = ?", identity.ConcurrencyStamp).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	identity.FailedAttempts = failed
	identity.LockoutEnd = lockoutEnd
	identity.ConcurrencyStamp = stamp
	identity.UpdatedAt = &now

	return true, nil
}

func (a *identities) TrackLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return a.TrackLoginTx(ctx, a.db, id, at)
}

func (a *identities) TrackLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	_, err := tx.NewRaw(TrackLoginSQL, at, id).Exec(ctx)
	return err
}

func expectAffected(res sql.Result, key string, value any) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{key: value})
	}
	return nil
}
