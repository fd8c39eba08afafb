package account

import (
	"fmt"
	"unicode"
)

// PasswordPolicy checks credentials against the configured rules
type PasswordPolicy struct {
	cfg PasswordConfig
}

// NewPasswordPolicy falls back to DefaultPasswordRules when cfg is nil.
func NewPasswordPolicy(cfg PasswordConfig) PasswordPolicy {
	if cfg == nil {
		cfg = DefaultPasswordRules()
	}
	return PasswordPolicy{cfg: cfg}
}

// Check returns a WEAK_CREDENTIAL error listing every violated rule.
func (p PasswordPolicy) Check(password string) error {
	cfg := p.cfg
	if cfg == nil {
		cfg = DefaultPasswordRules()
	}

	var violations []string

	if minLen := cfg.GetMinLength(); len([]rune(password)) < minLen {
		violations = append(violations, fmt.Sprintf("must be at least %d characters long", minLen))
	}

	var digit, lower, upper, other bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			other = true
		}
	}

	if cfg.GetRequireDigit() && !digit {
		violations = append(violations, "must contain a digit")
	}
	if cfg.GetRequireLowercase() && !lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if cfg.GetRequireUppercase() && !upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if cfg.GetRequireNonAlphanumeric() && !other {
		violations = append(violations, "must contain a non alphanumeric character")
	}

	if len(violations) > 0 {
		return ErrWeakCredential(violations...)
	}

	return nil
}
