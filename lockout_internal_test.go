package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextFailureState(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	tests := []struct {
		name        string
		identity    *Identity
		wantFailed  int
		wantLocked  bool
		wantChanged bool
	}{
		{"first failure", &Identity{}, 1, false, true},
		{"below threshold", &Identity{FailedAttempts: 3}, 4, false, true},
		{"reaches threshold", &Identity{FailedAttempts: 4}, 5, true, true},
		{"inside window", &Identity{FailedAttempts: 5, LockoutEnd: &future}, 5, true, false},
		{"after window", &Identity{FailedAttempts: 5, LockoutEnd: &past}, 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failed, end, changed := nextFailureState(tt.identity, now, 5, 5*time.Minute)
			assert.Equal(t, tt.wantFailed, failed)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantLocked, end != nil && end.After(now))
			if tt.wantLocked && tt.wantChanged {
				assert.Equal(t, now.Add(5*time.Minute), *end)
			}
		})
	}
}

func TestNextFailureStateWithoutThreshold(t *testing.T) {
	now := time.Now()
	failed, end, changed := nextFailureState(&Identity{FailedAttempts: 100}, now, 0, time.Minute)
	assert.Equal(t, 101, failed)
	assert.Nil(t, end)
	assert.True(t, changed)
}

func TestLockedAt(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(90 * time.Second)

	locked, remaining := lockedAt(&Identity{LockoutEnd: &end}, now)
	assert.True(t, locked)
	assert.Equal(t, 90*time.Second, remaining)

	locked, remaining = lockedAt(&Identity{LockoutEnd: &end}, end)
	assert.False(t, locked)
	assert.Zero(t, remaining)

	locked, _ = lockedAt(nil, now)
	assert.False(t, locked)
}
