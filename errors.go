package account

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by every error the lifecycle returns
const (
	TextCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	TextCodeDuplicateUsername    = "DUPLICATE_USERNAME"
	TextCodeWeakCredential       = "WEAK_CREDENTIAL"
	TextCodeNoSuchAccount        = "NO_SUCH_ACCOUNT"
	TextCodeEmailNotConfirmed    = "EMAIL_NOT_CONFIRMED"
	TextCodeInvalidPassword      = "INVALID_PASSWORD"
	TextCodeLockedOut            = "LOCKED_OUT"
	TextCodeInvalidRequest       = "INVALID_REQUEST"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenPurposeMismatch = "TOKEN_PURPOSE_MISMATCH"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
	TextCodeUserNotFound         = "USER_NOT_FOUND"
	TextCodeRoleNotFound         = "ROLE_NOT_FOUND"
	TextCodeDuplicateRoleName    = "DUPLICATE_ROLE_NAME"
	TextCodeSessionInvalid       = "SESSION_INVALID"
	TextCodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
)

const metadataRemaining = "remaining"

var knownTextCodes = map[string]struct{}{
	TextCodeDuplicateEmail:       {},
	TextCodeDuplicateUsername:    {},
	TextCodeWeakCredential:       {},
	TextCodeNoSuchAccount:        {},
	TextCodeEmailNotConfirmed:    {},
	TextCodeInvalidPassword:      {},
	TextCodeLockedOut:            {},
	TextCodeInvalidRequest:       {},
	TextCodeTokenExpired:         {},
	TextCodeTokenPurposeMismatch: {},
	TextCodeTokenMalformed:       {},
	TextCodeUserNotFound:         {},
	TextCodeRoleNotFound:         {},
	TextCodeDuplicateRoleName:    {},
	TextCodeSessionInvalid:       {},
	TextCodeServiceUnavailable:   {},
}

// ErrEmptyPassword is returned when hashing an empty credential
var ErrEmptyPassword = errors.New("password must not be empty")

// ErrMismatchedHashAndPassword is returned when a credential does not match its hash
var ErrMismatchedHashAndPassword = errors.New("password does not match")

// ErrSessionNotFound is returned by session stores for unknown or expired sessions
var ErrSessionNotFound = errors.New("session not found")

// ErrDuplicateEmail reports that another identity already uses the address.
func ErrDuplicateEmail(email string) *goerrors.Error {
	return goerrors.New("an account with this email address already exists", goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateEmail).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"field": "email", "email": email})
}

// ErrDuplicateUsername reports that another identity already uses the username.
func ErrDuplicateUsername(username string) *goerrors.Error {
	return goerrors.New("an account with this username already exists", goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateUsername).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"field": "username", "username": username})
}

// ErrWeakCredential lists the password policy violations.
func ErrWeakCredential(violations ...string) *goerrors.Error {
	return goerrors.New("password does not satisfy the password policy", goerrors.CategoryValidation).
		WithTextCode(TextCodeWeakCredential).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"field": "password", "violations": violations})
}

// ErrNoSuchAccount reports that no identity matches the given address.
func ErrNoSuchAccount(identifier string) *goerrors.Error {
	return goerrors.New("there is no account matching this email address", goerrors.CategoryNotFound).
		WithTextCode(TextCodeNoSuchAccount).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"field": "email", "identifier": identifier})
}

func ErrEmailNotConfirmed() *goerrors.Error {
	return goerrors.New("please confirm your account using the link sent to your email", goerrors.CategoryAuth).
		WithTextCode(TextCodeEmailNotConfirmed).
		WithCode(goerrors.CodeUnauthorized)
}

func ErrInvalidPassword() *goerrors.Error {
	return goerrors.New("the password is incorrect", goerrors.CategoryAuth).
		WithTextCode(TextCodeInvalidPassword).
		WithCode(goerrors.CodeUnauthorized).
		WithMetadata(map[string]any{"field": "password"})
}

// ErrLockedOut carries the time left in the lockout window under the
// "remaining" metadata key.
func ErrLockedOut(remaining time.Duration) *goerrors.Error {
	return goerrors.New("the account is locked, please try again later", goerrors.CategoryRateLimit).
		WithTextCode(TextCodeLockedOut).
		WithCode(http.StatusLocked).
		WithMetadata(map[string]any{
			metadataRemaining:   remaining,
			"remaining_seconds": int(remaining.Round(time.Second) / time.Second),
		})
}

// ErrInvalidRequest reports missing or malformed arguments.
func ErrInvalidRequest(msg string, fields ...string) *goerrors.Error {
	err := goerrors.New(msg, goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidRequest).
		WithCode(goerrors.CodeBadRequest)
	if len(fields) > 0 {
		err = err.WithMetadata(map[string]any{"fields": fields})
	}
	return err
}

func ErrTokenExpired() *goerrors.Error {
	return goerrors.New("the token has expired or was already used", goerrors.CategoryValidation).
		WithTextCode(TextCodeTokenExpired).
		WithCode(goerrors.CodeBadRequest)
}

func ErrTokenPurposeMismatch() *goerrors.Error {
	return goerrors.New("the token was not issued for this account or operation", goerrors.CategoryValidation).
		WithTextCode(TextCodeTokenPurposeMismatch).
		WithCode(goerrors.CodeBadRequest)
}

func ErrTokenMalformed() *goerrors.Error {
	return goerrors.New("the token is invalid", goerrors.CategoryValidation).
		WithTextCode(TextCodeTokenMalformed).
		WithCode(goerrors.CodeBadRequest)
}

func ErrUserNotFound(id string) *goerrors.Error {
	return goerrors.New("user not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeUserNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"id": id})
}

func ErrRoleNotFound(id string) *goerrors.Error {
	return goerrors.New("role not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeRoleNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"id": id})
}

func ErrDuplicateRoleName(name string) *goerrors.Error {
	return goerrors.New("a role with this name already exists", goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateRoleName).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"field": "name", "name": name})
}

func ErrSessionInvalid() *goerrors.Error {
	return goerrors.New("session is invalid or has expired", goerrors.CategoryAuth).
		WithTextCode(TextCodeSessionInvalid).
		WithCode(goerrors.CodeUnauthorized)
}

// ErrServiceUnavailable wraps a store or transport failure. It is never
// reported as a credential error.
func ErrServiceUnavailable(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeServiceUnavailable).
		WithCode(http.StatusServiceUnavailable)
}

// Kind returns the text code of err, or an empty string if err was not
// produced by this package.
func Kind(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return ""
	}
	if _, ok := knownTextCodes[richErr.TextCode]; !ok {
		return ""
	}
	return richErr.TextCode
}

// IsKind reports whether err carries the given text code.
func IsKind(err error, code string) bool {
	return err != nil && Kind(err) == code
}

// LockoutRemaining extracts the remaining lockout window from a LOCKED_OUT error.
func LockoutRemaining(err error) (time.Duration, bool) {
	if !IsKind(err, TextCodeLockedOut) {
		return 0, false
	}
	var richErr *goerrors.Error
	goerrors.As(err, &richErr)
	remaining, ok := richErr.Metadata[metadataRemaining].(time.Duration)
	return remaining, ok
}

// FieldErrors flattens validation failures into a field to message map
// suitable for form rendering.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		if err != nil {
			out["form"] = err.Error()
		}
		return out
	}

	for field, msg := range richErr.ValidationMap() {
		out[field] = msg
	}

	if len(out) == 0 {
		field, _ := richErr.Metadata["field"].(string)
		if field == "" {
			field = "form"
		}
		out[field] = richErr.Message
	}

	return out
}

// storeError maps a persistence failure. Errors that already carry one of
// our text codes pass through untouched.
func storeError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if Kind(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, msg)
	}
	return ErrServiceUnavailable(err, msg)
}

// finalizeError mirrors the rich error handling used at the end of every
// transactional operation.
func finalizeError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && Kind(richErr) != "" {
		return richErr
	}
	return storeError(err, msg)
}

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique") && !strings.Contains(msg, "duplicate key") {
		return false
	}
	return column == "" || strings.Contains(msg, column)
}
