package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Logger is the structured logger used across the package. Arguments are
// key/value pairs, which makes any glog.Logger a valid implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PasswordConfig holds the credential policy
type PasswordConfig interface {
	GetMinLength() int
	GetRequireDigit() bool
	GetRequireLowercase() bool
	GetRequireUppercase() bool
	GetRequireNonAlphanumeric() bool
	GetBcryptCost() int
}

// LockoutConfig holds the failed attempt policy
type LockoutConfig interface {
	GetMaxFailedAttempts() int
	GetLockoutDuration() time.Duration
}

// TokenConfig holds signing options for purpose tokens and sessions
type TokenConfig interface {
	GetSigningKey() string
	GetIssuer() string
	GetConfirmationTTL() time.Duration
	GetResetTTL() time.Duration
}

// SessionConfig holds session cookie options
type SessionConfig interface {
	GetCookieName() string
	GetExpiration() time.Duration
	GetSlidingExpiration() bool
}

// PasswordHasher hashes and verifies credentials
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Message is an outbound notification
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// NotificationGateway delivers messages to a recipient. Implementations
// live in the mailer package.
type NotificationGateway interface {
	Send(ctx context.Context, msg Message) error
}

// PasswordRules is a static PasswordConfig
type PasswordRules struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
	BcryptCost             int
}

// DefaultPasswordRules requires six characters and no character classes.
func DefaultPasswordRules() PasswordRules {
	return PasswordRules{
		MinLength:  6,
		BcryptCost: bcrypt.DefaultCost,
	}
}

func (r PasswordRules) GetMinLength() int               { return r.MinLength }
func (r PasswordRules) GetRequireDigit() bool           { return r.RequireDigit }
func (r PasswordRules) GetRequireLowercase() bool       { return r.RequireLowercase }
func (r PasswordRules) GetRequireUppercase() bool       { return r.RequireUppercase }
func (r PasswordRules) GetRequireNonAlphanumeric() bool { return r.RequireNonAlphanumeric }
func (r PasswordRules) GetBcryptCost() int              { return r.BcryptCost }

// LockoutRules is a static LockoutConfig
type LockoutRules struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

// DefaultLockoutRules locks for five minutes after five failures.
func DefaultLockoutRules() LockoutRules {
	return LockoutRules{
		MaxFailedAttempts: 5,
		Duration:          5 * time.Minute,
	}
}

func (r LockoutRules) GetMaxFailedAttempts() int         { return r.MaxFailedAttempts }
func (r LockoutRules) GetLockoutDuration() time.Duration { return r.Duration }

// TokenSettings is a static TokenConfig
type TokenSettings struct {
	SigningKey      string
	Issuer          string
	ConfirmationTTL time.Duration
	ResetTTL        time.Duration
}

// DefaultTokenSettings uses a seven day confirmation window and a one day
// reset window. SigningKey must still be provided.
func DefaultTokenSettings(signingKey string) TokenSettings {
	return TokenSettings{
		SigningKey:      signingKey,
		Issuer:          "go-account",
		ConfirmationTTL: 7 * 24 * time.Hour,
		ResetTTL:        24 * time.Hour,
	}
}

func (s TokenSettings) GetSigningKey() string             { return s.SigningKey }
func (s TokenSettings) GetIssuer() string                 { return s.Issuer }
func (s TokenSettings) GetConfirmationTTL() time.Duration { return s.ConfirmationTTL }
func (s TokenSettings) GetResetTTL() time.Duration        { return s.ResetTTL }

// SessionSettings is a static SessionConfig
type SessionSettings struct {
	CookieName        string
	Expiration        time.Duration
	SlidingExpiration bool
}

// DefaultSessionSettings issues 30 day sliding sessions.
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{
		CookieName:        "account_session",
		Expiration:        30 * 24 * time.Hour,
		SlidingExpiration: true,
	}
}

func (s SessionSettings) GetCookieName() string        { return s.CookieName }
func (s SessionSettings) GetExpiration() time.Duration { return s.Expiration }
func (s SessionSettings) GetSlidingExpiration() bool   { return s.SlidingExpiration }

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ACCOUNT " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ACCOUNT " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ACCOUNT " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ACCOUNT " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func resolveLogger(logger Logger) Logger {
	if logger == nil {
		return defLogger{}
	}
	return logger
}
