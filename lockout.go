package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const lockoutMaxRetries = 5

// LockoutPolicy tracks failed sign-in attempts and lockout windows.
//
// An identity is Locked while its lockout end is in the future and Active
// otherwise. Expiry is derived from the clock, no timers are involved.
type LockoutPolicy struct {
	repo   RepositoryManager
	cfg    LockoutConfig
	now    func() time.Time
	logger Logger
}

func NewLockoutPolicy(repo RepositoryManager, cfg LockoutConfig) *LockoutPolicy {
	if cfg == nil {
		cfg = DefaultLockoutRules()
	}
	return &LockoutPolicy{
		repo:   repo,
		cfg:    cfg,
		now:    time.Now,
		logger: defLogger{},
	}
}

func (p *LockoutPolicy) WithClock(now func() time.Time) *LockoutPolicy {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *LockoutPolicy) WithLogger(logger Logger) *LockoutPolicy {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Check reports whether identity is locked at now and for how long.
func (p *LockoutPolicy) Check(identity *Identity, now time.Time) (bool, time.Duration) {
	return lockedAt(identity, now)
}

func lockedAt(identity *Identity, now time.Time) (bool, time.Duration) {
	if identity == nil || identity.LockoutEnd == nil {
		return false, 0
	}
	if !identity.LockoutEnd.After(now) {
		return false, 0
	}
	return true, identity.LockoutEnd.Sub(now)
}

// nextFailureState computes the counters after one more failure. Failures
// inside an active window leave the state untouched. A failure after the
// window elapsed starts counting again from one.
func nextFailureState(identity *Identity, now time.Time, threshold int, duration time.Duration) (int, *time.Time, bool) {
	if locked, _ := lockedAt(identity, now); locked {
		return identity.FailedAttempts, identity.LockoutEnd, false
	}

	failed := identity.FailedAttempts + 1
	if identity.LockoutEnd != nil {
		failed = 1
	}

	if threshold > 0 && failed >= threshold {
		end := now.Add(duration)
		return failed, &end, true
	}

	return failed, nil, true
}

// RecordFailure counts a failed attempt for identity and locks it once the
// threshold is reached. identity is refreshed in place with the stored
// state. Concurrent callers never lose an increment.
func (p *LockoutPolicy) RecordFailure(ctx context.Context, identity *Identity) error {
	return p.RecordFailureTx(ctx, p.repo.DB(), identity)
}

func (p *LockoutPolicy) RecordFailureTx(ctx context.Context, tx bun.IDB, identity *Identity) error {
	threshold := p.cfg.GetMaxFailedAttempts()
	duration := p.cfg.GetLockoutDuration()

	for attempt := 0; attempt < lockoutMaxRetries; attempt++ {
		now := p.now()
		failed, end, changed := nextFailureState(identity, now, threshold, duration)
		if !changed {
			return nil
		}

		ok, err := p.repo.Identities().CompareAndSwapLockoutTx(ctx, tx, identity, failed, end)
		if err != nil {
			return storeError(err, "failed to record failed attempt")
		}

		if ok {
			if end != nil {
				p.logger.Info("identity locked out", "identity_id", identity.ID, "until", *end)
			}
			return nil
		}

		fresh, err := p.repo.Identities().FindByIDTx(ctx, tx, identity.ID)
		if err != nil {
			return storeError(err, "failed to reload identity")
		}
		*identity = *fresh
	}

	return goerrors.New("too many concurrent updates recording failed attempt", goerrors.CategoryConflict).
		WithTextCode(TextCodeServiceUnavailable).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"identity_id": identity.ID.String()})
}

// Reset clears the failure counter and any lockout window.
func (p *LockoutPolicy) Reset(ctx context.Context, identity *Identity) error {
	return p.ResetTx(ctx, p.repo.DB(), identity)
}

func (p *LockoutPolicy) ResetTx(ctx context.Context, tx bun.IDB, identity *Identity) error {
	return p.reset(ctx, tx, identity, false)
}

// ResetAfterSignIn clears the counters for a verified credential. The write
// is checked against the stored concurrency stamp, so a lockout set by a
// concurrent attempt is never cleared and yields ErrLockedOut instead.
func (p *LockoutPolicy) ResetAfterSignIn(ctx context.Context, identity *Identity) error {
	return p.ResetAfterSignInTx(ctx, p.repo.DB(), identity)
}

func (p *LockoutPolicy) ResetAfterSignInTx(ctx context.Context, tx bun.IDB, identity *Identity) error {
	return p.reset(ctx, tx, identity, true)
}

func (p *LockoutPolicy) reset(ctx context.Context, tx bun.IDB, identity *Identity, honorWindow bool) error {
	for attempt := 0; attempt < lockoutMaxRetries; attempt++ {
		if honorWindow {
			if locked, remaining := lockedAt(identity, p.now()); locked {
				return ErrLockedOut(remaining)
			}
		}

		ok, err := p.repo.Identities().CompareAndSwapLockoutTx(ctx, tx, identity, 0, nil)
		if err != nil {
			return storeError(err, "failed to reset lockout")
		}
		if ok {
			return nil
		}

		fresh, err := p.repo.Identities().FindByIDTx(ctx, tx, identity.ID)
		if err != nil {
			return storeError(err, "failed to reload identity")
		}
		*identity = *fresh
	}

	return goerrors.New("too many concurrent updates resetting lockout", goerrors.CategoryConflict).
		WithTextCode(TextCodeServiceUnavailable).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"identity_id": identity.ID.String()})
}
