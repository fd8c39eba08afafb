package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const (
	TextCodeTokenMissing  = "CSRF_TOKEN_MISSING"
	TextCodeTokenMismatch = "CSRF_TOKEN_MISMATCH"
	TextCodeTokenExpired  = "CSRF_TOKEN_EXPIRED"
)

var (
	ErrTokenMissing = goerrors.New("request verification token missing", goerrors.CategoryBadInput).
			WithTextCode(TextCodeTokenMissing).
			WithCode(goerrors.CodeBadRequest)
	ErrTokenMismatch = goerrors.New("request verification token mismatch", goerrors.CategoryAuthz).
				WithTextCode(TextCodeTokenMismatch).
				WithCode(goerrors.CodeForbidden)
	ErrTokenExpired = goerrors.New("request verification token expired", goerrors.CategoryAuthz).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeForbidden)
)

const (
	DefaultContextKey    = "csrf_token"
	DefaultFormFieldName = "_token"
	DefaultHeaderName    = "X-CSRF-Token"
	nonceLength          = 16
)

// Config for the request verification middleware. Tokens are stateless,
// signed with SecureKey and bound to the session cookie when one is
// present, otherwise to the client address.
type Config struct {
	Skip          func(router.Context) bool
	SecureKey     []byte
	SessionCookie string
	ContextKey    string
	FormFieldName string
	HeaderName    string
	SafeMethods   []string
	Expiration    time.Duration
	ErrorHandler  router.ErrorHandler
	Now           func() time.Time
}

// New returns the middleware. Safe methods receive a fresh token in the
// request locals and the response header, other methods must echo one.
func New(cfg Config) router.MiddlewareFunc {
	cfg = configDefault(cfg)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			method := strings.ToUpper(ctx.Method())
			if slices.Contains(cfg.SafeMethods, method) {
				token, err := generateToken(cfg, bindingKey(ctx, cfg))
				if err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
				ctx.Locals(cfg.ContextKey, token)
				ctx.SetHeader(cfg.HeaderName, token)
				return next(ctx)
			}

			received := extractToken(ctx, cfg)
			if received == "" {
				return cfg.ErrorHandler(ctx, ErrTokenMissing)
			}

			if err := validateToken(cfg, bindingKey(ctx, cfg), received); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return next(ctx)
		}
	}
}

// DeriveKey stretches an arbitrary secret into a 32 byte signing key
func DeriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte("csrf:" + secret))
	return sum[:]
}

func generateToken(cfg Config, binding string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	payload := fmt.Sprintf("%d:%s", cfg.Now().UTC().Unix(), hex.EncodeToString(nonce))
	signature := sign(cfg.SecureKey, payload, binding)

	token := payload + ":" + hex.EncodeToString(signature)
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func validateToken(cfg Config, binding, token string) error {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 3 {
		return ErrTokenMismatch
	}

	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(parts[2])
	if err != nil {
		return ErrTokenMismatch
	}

	expected := sign(cfg.SecureKey, parts[0]+":"+parts[1], binding)
	if !hmac.Equal(signature, expected) {
		return ErrTokenMismatch
	}

	if cfg.Expiration > 0 && cfg.Now().UTC().After(time.Unix(timestamp, 0).Add(cfg.Expiration)) {
		return ErrTokenExpired
	}

	return nil
}

func sign(key []byte, payload, binding string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	mac.Write([]byte{0})
	mac.Write([]byte(binding))
	return mac.Sum(nil)
}

func bindingKey(ctx router.Context, cfg Config) string {
	if cfg.SessionCookie != "" {
		if session := ctx.Cookies(cfg.SessionCookie); session != "" {
			sum := sha256.Sum256([]byte(session))
			return "session:" + hex.EncodeToString(sum[:])
		}
	}
	return "ip:" + ctx.IP()
}

func extractToken(ctx router.Context, cfg Config) string {
	if token := strings.TrimSpace(ctx.GetString(cfg.HeaderName, "")); token != "" {
		return token
	}
	return strings.TrimSpace(ctx.FormValue(cfg.FormFieldName))
}

func configDefault(cfg Config) Config {
	if len(cfg.SecureKey) < 32 {
		panic(fmt.Errorf("csrf: secure key must be at least 32 bytes, got %d", len(cfg.SecureKey)))
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = 2 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	return cfg
}

func defaultErrorHandler(ctx router.Context, err error) error {
	return ctx.JSON(account.StatusFor(err), map[string]any{
		"error": account.NewErrorResponse(err),
	})
}
