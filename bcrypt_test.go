package account_test

import (
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hasher := account.NewBcryptHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.HashPassword(tt.password)

			if tt.wantErr {
				assert.ErrorIs(t, err, account.ErrEmptyPassword)
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tt.password, hash)

			assert.NoError(t, hasher.ComparePasswordAndHash(tt.password, hash))
			assert.ErrorIs(t, hasher.ComparePasswordAndHash("wrong", hash), account.ErrMismatchedHashAndPassword)
		})
	}
}

func TestBcryptHasherCost(t *testing.T) {
	tests := []struct {
		name string
		cost int
		want int
	}{
		{"default", 0, bcrypt.DefaultCost},
		{"below minimum", 1, bcrypt.MinCost},
		{"explicit", bcrypt.MinCost + 1, bcrypt.MinCost + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := account.NewBcryptHasher(tt.cost).HashPassword("secret1")
			assert.NoError(t, err)

			cost, err := bcrypt.Cost([]byte(hash))
			assert.NoError(t, err)
			assert.Equal(t, tt.want, cost)
		})
	}
}

func TestComparePasswordMalformedHash(t *testing.T) {
	err := account.NewBcryptHasher(bcrypt.MinCost).ComparePasswordAndHash("secret1", "not-a-hash")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, account.ErrMismatchedHashAndPassword)
}
