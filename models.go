package account

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AdminRoleName is the role granted to the seeded administrator
const AdminRoleName = "Admin"

// Identity is the persisted account record.
//
// EmailConfirmed only flips through ConfirmEmail. FailedAttempts and
// LockoutEnd are only written by LockoutPolicy. PasswordHash is only
// written on creation and on a successful reset.
type Identity struct {
	bun.BaseModel    `bun:"table:identities,alias:idn"`
	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username         string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email            string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName         string     `bun:"full_name" json:"full_name,omitempty"`
	Phone            string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash     string     `bun:"password_hash,notnull" json:"-"`
	EmailConfirmed   bool       `bun:"email_confirmed,notnull" json:"email_confirmed"`
	FailedAttempts   int        `bun:"failed_attempts,notnull" json:"failed_attempts"`
	LockoutEnd       *time.Time `bun:"lockout_end,nullzero" json:"lockout_end,omitempty"`
	ConcurrencyStamp string     `bun:"concurrency_stamp,notnull" json:"-"`
	LastLoginAt      *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Role is a named group identities can belong to
type Role struct {
	bun.BaseModel  `bun:"table:roles,alias:rl"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name           string     `bun:"name,notnull" json:"name"`
	NormalizedName string     `bun:"normalized_name,notnull,unique" json:"-"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IdentityRole is a role membership
type IdentityRole struct {
	bun.BaseModel `bun:"table:identity_roles,alias:idr"`
	IdentityID    uuid.UUID  `bun:"identity_id,pk,type:uuid" json:"identity_id"`
	RoleID        uuid.UUID  `bun:"role_id,pk,type:uuid" json:"role_id"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// TokenPurpose scopes a token to a single operation
type TokenPurpose = string

const (
	// PurposeEmailConfirmation tokens confirm ownership of an email address
	PurposeEmailConfirmation TokenPurpose = "email_confirmation"
	// PurposePasswordReset tokens authorize a credential reset
	PurposePasswordReset TokenPurpose = "password_reset"
)

// AccountToken is the ledger row backing an issued purpose token. The row
// ID matches the token jti claim.
type AccountToken struct {
	bun.BaseModel `bun:"table:account_tokens,alias:tkn"`
	ID            uuid.UUID    `bun:"id,pk,type:uuid" json:"id"`
	IdentityID    uuid.UUID    `bun:"identity_id,notnull,type:uuid" json:"identity_id"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Consumed reports whether the token was used or superseded
func (t *AccountToken) Consumed() bool {
	return t != nil && t.ConsumedAt != nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func prepareIdentityDefaults(identity *Identity) {
	if identity == nil {
		return
	}
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	identity.Email = normalizeEmail(identity.Email)
	identity.Username = strings.TrimSpace(identity.Username)
	if identity.ConcurrencyStamp == "" {
		identity.ConcurrencyStamp = uuid.NewString()
	}
}
