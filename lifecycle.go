package account

import (
	"context"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StatusPendingConfirmation is reported after a successful registration
const StatusPendingConfirmation = "pending_confirmation"

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9\-._@+]+$`)

// RegisterMessage is the registration request
type RegisterMessage struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	FullName string `form:"full_name" json:"full_name"`
	Phone    string `form:"phone_number" json:"phone_number"`
}

func (m RegisterMessage) Type() string {
	return "account.register"
}

// Validate checks the request shape only, the password policy is applied
// by the credential store.
func (m RegisterMessage) Validate() *goerrors.Error {
	return goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Username, validation.Required, validation.Length(2, 64), validation.Match(usernamePattern)),
			validation.Field(&m.Email, validation.Required, validation.Length(3, 256), is.Email),
			validation.Field(&m.Password, validation.Required),
			validation.Field(&m.FullName, validation.Length(0, 200)),
			validation.Field(&m.Phone, validation.Length(0, 32)),
		)
	}, "invalid registration request")
}

// RegisterResult is returned by a successful registration
type RegisterResult struct {
	Identity *Identity `json:"identity"`
	Status   string    `json:"status"`
}

// LoginMessage is the sign-in request
type LoginMessage struct {
	Email      string `form:"email" json:"email"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

func (m LoginMessage) Type() string {
	return "account.login"
}

// LoginResult carries the new session
type LoginResult struct {
	Identity *Identity     `json:"identity"`
	Session  *IssuedSession `json:"-"`
}

// ResetPasswordMessage completes a password reset
type ResetPasswordMessage struct {
	Email    string `form:"email" json:"email"`
	Token    string `form:"token" json:"token"`
	Password string `form:"password" json:"password"`
}

func (m ResetPasswordMessage) Type() string {
	return "account.password.reset"
}

// Lifecycle orchestrates register, confirm, login, forgot and reset. The
// order of checks inside each operation determines which error a caller
// sees and must not be rearranged.
type Lifecycle struct {
	repo     RepositoryManager
	tokens   *TokenIssuer
	lockout  *LockoutPolicy
	sessions SessionManager
	notifier *Notifier
	activity ActivitySink
	logger   Logger
	now      func() time.Time
	timeout  time.Duration
	region   string
}

func NewLifecycle(repo RepositoryManager, tokens *TokenIssuer, lockout *LockoutPolicy, sessions SessionManager, notifier *Notifier) *Lifecycle {
	return &Lifecycle{
		repo:     repo,
		tokens:   tokens,
		lockout:  lockout,
		sessions: sessions,
		notifier: notifier,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
		timeout:  10 * time.Second,
		region:   DefaultPhoneRegion,
	}
}

// WithActivitySink sets the sink used to emit lifecycle events.
func (l *Lifecycle) WithActivitySink(sink ActivitySink) *Lifecycle {
	l.activity = normalizeActivitySink(sink)
	return l
}

// WithLogger overrides the logger used by the lifecycle.
func (l *Lifecycle) WithLogger(logger Logger) *Lifecycle {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// WithClock injects the time source, it should match the one given to the
// token issuer and lockout policy.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	if now != nil {
		l.now = now
	}
	return l
}

// WithPhoneRegion sets the region used to parse local phone numbers
func (l *Lifecycle) WithPhoneRegion(region string) *Lifecycle {
	if region != "" {
		l.region = region
	}
	return l
}

// WithTimeout bounds each operation
func (l *Lifecycle) WithTimeout(timeout time.Duration) *Lifecycle {
	if timeout > 0 {
		l.timeout = timeout
	}
	return l
}

func (l *Lifecycle) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+op,
		)
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	return fn(ctx)
}

// Register creates an unconfirmed identity and sends a confirmation link.
// Nothing is persisted unless every step succeeds.
func (l *Lifecycle) Register(ctx context.Context, msg RegisterMessage) (*RegisterResult, error) {
	var result *RegisterResult

	err := l.run(ctx, "registration", func(ctx context.Context) error {
		if verr := msg.Validate(); verr != nil {
			return verr.
				WithTextCode(TextCodeInvalidRequest).
				WithCode(goerrors.CodeBadRequest)
		}

		phone, err := NormalizePhone(msg.Phone, l.region)
		if err != nil {
			return err
		}

		identity := &Identity{
			Username: msg.Username,
			Email:    msg.Email,
			FullName: strings.TrimSpace(msg.FullName),
			Phone:    phone,
		}

		var token string
		txErr := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := l.repo.Identities().CreateTx(ctx, tx, identity, msg.Password); err != nil {
				return err
			}

			issued, err := l.tokens.IssueTx(ctx, tx, identity.ID, PurposeEmailConfirmation)
			if err != nil {
				return err
			}
			token = issued
			return nil
		})
		if txErr != nil {
			return finalizeError(txErr, "failed to register account")
		}

		l.notifier.SendConfirmation(ctx, identity, token, l.tokens.TTL(PurposeEmailConfirmation))

		l.record(ctx, ActivityEvent{
			EventType:  ActivityEventRegistered,
			IdentityID: identity.ID.String(),
			ToState:    StateUnconfirmed,
			Metadata: map[string]any{
				"username": identity.Username,
				"email":    identity.Email,
			},
		})

		result = &RegisterResult{
			Identity: identity,
			Status:   StatusPendingConfirmation,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConfirmEmail confirms the identity when token was minted for it. On any
// token error the identity is left unchanged.
func (l *Lifecycle) ConfirmEmail(ctx context.Context, identityID, token string) error {
	return l.run(ctx, "email confirmation", func(ctx context.Context) error {
		identityID = strings.TrimSpace(identityID)
		token = strings.TrimSpace(token)
		if identityID == "" || token == "" {
			return ErrInvalidRequest("user id and token are required", "userId", "token")
		}

		id, err := uuid.Parse(identityID)
		if err != nil {
			return ErrUserNotFound(identityID)
		}

		var identity *Identity
		var from AccountState

		txErr := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			found, err := l.repo.Identities().FindByIDTx(ctx, tx, id)
			if err != nil {
				if repository.IsRecordNotFound(err) {
					return ErrUserNotFound(identityID)
				}
				return err
			}
			identity = found
			from = StateOf(identity, l.now())

			ledger, err := l.tokens.ValidateTx(ctx, tx, token, id, PurposeEmailConfirmation)
			if err != nil {
				return err
			}

			if err := l.tokens.ConsumeTx(ctx, tx, ledger); err != nil {
				return err
			}

			return l.repo.Identities().ConfirmEmailTx(ctx, tx, id)
		})
		if txErr != nil {
			return finalizeError(txErr, "failed to confirm email")
		}

		identity.EmailConfirmed = true
		l.transition(ctx, ActivityEventEmailConfirmed, identity, from, nil)
		return nil
	})
}

// ResendConfirmation issues a fresh confirmation token, superseding earlier
// ones. It is a no-op for confirmed identities.
func (l *Lifecycle) ResendConfirmation(ctx context.Context, email string) error {
	return l.run(ctx, "confirmation resend", func(ctx context.Context) error {
		email = strings.TrimSpace(email)
		if email == "" {
			return ErrInvalidRequest("please enter your email address", "email")
		}

		identity, err := l.repo.Identities().FindByEmail(ctx, email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrNoSuchAccount(email)
			}
			return storeError(err, "failed to find account")
		}

		if identity.EmailConfirmed {
			return nil
		}

		token, err := l.tokens.Issue(ctx, identity.ID, PurposeEmailConfirmation)
		if err != nil {
			return err
		}

		l.notifier.SendConfirmation(ctx, identity, token, l.tokens.TTL(PurposeEmailConfirmation))

		l.record(ctx, ActivityEvent{
			EventType:  ActivityEventConfirmationResent,
			IdentityID: identity.ID.String(),
		})
		return nil
	})
}

// Login verifies the credentials of a confirmed identity and issues a new
// session, revoking any previous one.
func (l *Lifecycle) Login(ctx context.Context, msg LoginMessage) (*LoginResult, error) {
	var result *LoginResult

	err := l.run(ctx, "login", func(ctx context.Context) error {
		email := strings.TrimSpace(msg.Email)
		if email == "" || msg.Password == "" {
			return ErrInvalidRequest("email and password are required", "email", "password")
		}

		identity, err := l.repo.Identities().FindByEmail(ctx, email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrNoSuchAccount(email)
			}
			return storeError(err, "failed to find account")
		}

		if !identity.EmailConfirmed {
			return ErrEmailNotConfirmed()
		}

		ok, err := l.repo.Identities().VerifyCredential(identity, msg.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify credential")
		}

		if !ok {
			return l.failedLogin(ctx, identity)
		}

		// another attempt may have locked the row while the hash was compared
		fresh, err := l.repo.Identities().FindByID(ctx, identity.ID)
		if err != nil {
			return storeError(err, "failed to reload account")
		}
		identity = fresh

		now := l.now()
		if locked, remaining := l.lockout.Check(identity, now); locked {
			return l.lockedLogin(ctx, identity, remaining)
		}

		from := StateOf(identity, now)

		if err := l.lockout.ResetAfterSignIn(ctx, identity); err != nil {
			if remaining, ok := LockoutRemaining(err); ok {
				return l.lockedLogin(ctx, identity, remaining)
			}
			return err
		}

		if err := l.sessions.RevokeIdentity(ctx, identity.ID.String()); err != nil {
			return err
		}

		issued, err := l.sessions.Issue(ctx, identity, msg.RememberMe)
		if err != nil {
			return err
		}

		if err := l.repo.Identities().TrackLogin(ctx, identity.ID, now); err != nil {
			l.logger.Warn("failed to track login", "identity_id", identity.ID, "error", err)
		} else {
			identity.LastLoginAt = &now
		}

		l.transition(ctx, ActivityEventLoginSuccess, identity, from, map[string]any{
			"persistent": msg.RememberMe,
		})

		result = &LoginResult{
			Identity: identity,
			Session:  issued,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Lifecycle) lockedLogin(ctx context.Context, identity *Identity, remaining time.Duration) error {
	l.record(ctx, ActivityEvent{
		EventType:  ActivityEventLoginFailure,
		IdentityID: identity.ID.String(),
		Metadata:   map[string]any{"reason": "locked_out"},
	})
	return ErrLockedOut(remaining)
}

func (l *Lifecycle) failedLogin(ctx context.Context, identity *Identity) error {
	from := StateOf(identity, l.now())

	if err := l.lockout.RecordFailure(ctx, identity); err != nil {
		return err
	}

	l.record(ctx, ActivityEvent{
		EventType:  ActivityEventLoginFailure,
		IdentityID: identity.ID.String(),
		Metadata: map[string]any{
			"reason":          "invalid_password",
			"failed_attempts": identity.FailedAttempts,
		},
	})

	locked, remaining := l.lockout.Check(identity, l.now())
	if !locked {
		return ErrInvalidPassword()
	}

	if from != StateLocked {
		l.transition(ctx, ActivityEventLockedOut, identity, from, map[string]any{
			"lockout_end": identity.LockoutEnd,
		})
	}

	return ErrLockedOut(remaining)
}

// Logout revokes the session behind token
func (l *Lifecycle) Logout(ctx context.Context, token string) error {
	return l.run(ctx, "logout", func(ctx context.Context) error {
		if strings.TrimSpace(token) == "" {
			return ErrInvalidRequest("session token is required", "session")
		}

		var identityID string
		if session, err := l.sessions.Resolve(ctx, token); err == nil {
			identityID = session.IdentityID
		}

		if err := l.sessions.Revoke(ctx, token); err != nil {
			return err
		}

		if identityID != "" {
			l.record(ctx, ActivityEvent{
				EventType:  ActivityEventLogout,
				IdentityID: identityID,
			})
		}
		return nil
	})
}

// ForgotPassword sends a reset link to the identity matching email, the
// value is also tried as a username.
func (l *Lifecycle) ForgotPassword(ctx context.Context, email string) error {
	return l.run(ctx, "password reset request", func(ctx context.Context) error {
		email = strings.TrimSpace(email)
		if email == "" {
			return ErrInvalidRequest("please enter your email address", "email")
		}

		identity, err := l.findByEmailOrUsername(ctx, email)
		if err != nil {
			return err
		}

		token, err := l.tokens.Issue(ctx, identity.ID, PurposePasswordReset)
		if err != nil {
			return err
		}

		l.notifier.SendPasswordReset(ctx, identity, token, l.tokens.TTL(PurposePasswordReset))

		l.record(ctx, ActivityEvent{
			EventType:  ActivityEventPasswordResetRequested,
			IdentityID: identity.ID.String(),
		})
		return nil
	})
}

func (l *Lifecycle) findByEmailOrUsername(ctx context.Context, value string) (*Identity, error) {
	identity, err := l.repo.Identities().FindByEmail(ctx, value)
	if err == nil {
		return identity, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, storeError(err, "failed to find account")
	}

	identity, err = l.repo.Identities().FindByUsername(ctx, value)
	if err == nil {
		return identity, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, storeError(err, "failed to find account")
	}

	return nil, ErrNoSuchAccount(value)
}

// ResetPassword replaces the credential when token is a valid reset token
// for the identity. The hash update and token consumption commit together.
// The lockout state is left as is.
func (l *Lifecycle) ResetPassword(ctx context.Context, msg ResetPasswordMessage) error {
	return l.run(ctx, "password reset", func(ctx context.Context) error {
		email := strings.TrimSpace(msg.Email)
		token := strings.TrimSpace(msg.Token)
		if email == "" || token == "" || msg.Password == "" {
			return ErrInvalidRequest("email, token and password are required", "email", "token", "password")
		}

		identity, err := l.repo.Identities().FindByEmail(ctx, email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrNoSuchAccount(email)
			}
			return storeError(err, "failed to find account")
		}

		txErr := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			ledger, err := l.tokens.ValidateTx(ctx, tx, token, identity.ID, PurposePasswordReset)
			if err != nil {
				return err
			}

			if err := l.repo.Identities().UpdateCredentialTx(ctx, tx, identity, msg.Password); err != nil {
				return err
			}

			return l.tokens.ConsumeTx(ctx, tx, ledger)
		})
		if txErr != nil {
			return finalizeError(txErr, "failed to reset password")
		}

		if err := l.sessions.RevokeIdentity(ctx, identity.ID.String()); err != nil {
			l.logger.Error("failed to revoke session after password reset", "identity_id", identity.ID, "error", err)
		}

		l.record(ctx, ActivityEvent{
			EventType:  ActivityEventPasswordResetCompleted,
			IdentityID: identity.ID.String(),
		})
		return nil
	})
}

// FindIdentity resolves a session's identity
func (l *Lifecycle) FindIdentity(ctx context.Context, session *Session) (*Identity, error) {
	if session == nil {
		return nil, ErrSessionInvalid()
	}
	id, err := uuid.Parse(session.IdentityID)
	if err != nil {
		return nil, ErrSessionInvalid()
	}
	identity, err := l.repo.Identities().FindByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound(session.IdentityID)
		}
		return nil, storeError(err, "failed to find account")
	}
	return identity, nil
}

func (l *Lifecycle) transition(ctx context.Context, eventType ActivityEventType, identity *Identity, from AccountState, metadata map[string]any) {
	to := StateOf(identity, l.now())
	if !CanTransition(from, to) {
		l.logger.Warn("unexpected account state transition", "identity_id", identity.ID, "from", from, "to", to)
	}

	l.record(ctx, ActivityEvent{
		EventType:  eventType,
		IdentityID: identity.ID.String(),
		FromState:  from,
		ToState:    to,
		Metadata:   metadata,
	})
}

func (l *Lifecycle) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.now()
	}
	recordActivity(ctx, l.activity, l.logger, event)
}
