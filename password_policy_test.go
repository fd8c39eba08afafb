package account_test

import (
	"testing"

	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordPolicyDefaults(t *testing.T) {
	policy := account.NewPasswordPolicy(nil)

	assert.NoError(t, policy.Check("secret"))
	assert.NoError(t, policy.Check("ñandú1"))

	err := policy.Check("abc")
	require.Error(t, err)
	assert.True(t, account.IsKind(err, account.TextCodeWeakCredential))
}

func TestPasswordPolicyViolations(t *testing.T) {
	policy := account.NewPasswordPolicy(account.PasswordRules{
		MinLength:              8,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	})

	tests := []struct {
		name       string
		password   string
		violations int
	}{
		{"compliant", "Secr3t!pass", 0},
		{"everything missing", "", 5},
		{"short", "Ab1!", 1},
		{"no digit", "Secret!pass", 1},
		{"no upper", "secr3t!pass", 1},
		{"no lower", "SECR3T!PASS", 1},
		{"no symbol", "Secr3tpass", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(tt.password)
			if tt.violations == 0 {
				assert.NoError(t, err)
				return
			}

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, account.TextCodeWeakCredential, richErr.TextCode)
			assert.Len(t, richErr.Metadata["violations"], tt.violations)
		})
	}
}
