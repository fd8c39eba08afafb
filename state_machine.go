package account

import "time"

// AccountState is the lifecycle state of an identity, derived from its
// stored fields and the clock.
type AccountState string

const (
	StateUnconfirmed AccountState = "unconfirmed"
	StateActive      AccountState = "active"
	StateLocked      AccountState = "locked"
)

// accountTransitions lists the moves the lifecycle is allowed to make.
// A password reset keeps the state it started from.
var accountTransitions = map[AccountState]map[AccountState]struct{}{
	StateUnconfirmed: {
		StateActive: {},
	},
	StateActive: {
		StateLocked: {},
		StateActive: {},
	},
	StateLocked: {
		StateActive: {},
		StateLocked: {},
	},
}

// StateOf derives the state of identity at now.
func StateOf(identity *Identity, now time.Time) AccountState {
	if identity == nil || !identity.EmailConfirmed {
		return StateUnconfirmed
	}
	if locked, _ := lockedAt(identity, now); locked {
		return StateLocked
	}
	return StateActive
}

// CanTransition reports whether the lifecycle may move from one state to another.
func CanTransition(from, to AccountState) bool {
	targets, ok := accountTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}
