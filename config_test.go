package auth_test

import (
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-tokenauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// legacyConfig is a Config implemented outside the package
type legacyConfig struct {
	key string
}

func (c legacyConfig) GetSigningKey() string            { return c.key }
func (c legacyConfig) GetSigningMethod() string         { return "" }
func (c legacyConfig) GetIssuer() string                { return "legacy" }
func (c legacyConfig) GetAudience() []string            { return []string{"api"} }
func (c legacyConfig) GetAccessTokenTTL() time.Duration { return time.Hour }
func (c legacyConfig) GetResetTokenTTL() time.Duration  { return 0 }
func (c legacyConfig) GetBcryptCost() int               { return 0 }
func (c legacyConfig) GetPasswordMinLength() int        { return 0 }
func (c legacyConfig) GetPasswordMaxLength() int        { return 0 }
func (c legacyConfig) GetStrictEnumeration() bool       { return true }

func TestOptionsFromConfig(t *testing.T) {
	opts := auth.OptionsFromConfig(legacyConfig{key: testSigningKey})

	assert.Equal(t, testSigningKey, opts.SigningKey)
	assert.Equal(t, auth.DefaultSigningMethod, opts.SigningMethod)
	assert.Equal(t, "legacy", opts.Issuer)
	assert.Equal(t, []string{"api"}, opts.Audience)
	assert.Equal(t, time.Hour, opts.AccessTokenTTL)
	assert.Equal(t, auth.DefaultResetTokenTTL, opts.ResetTokenTTL)
	assert.Equal(t, auth.DefaultPasswordMinLength, opts.PasswordMinLength)
	assert.True(t, opts.StrictEnumeration)
	assert.NoError(t, opts.Validate())

	assert.Equal(t, auth.DefaultOptions(), auth.OptionsFromConfig(nil))
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.Options)
		field  string
	}{
		{name: "missing key", mutate: func(o *auth.Options) { o.SigningKey = "" }, field: "signing_key"},
		{name: "algorithm", mutate: func(o *auth.Options) { o.SigningMethod = "HS512" }, field: "signing_method"},
		{name: "bcrypt cost", mutate: func(o *auth.Options) { o.BcryptCost = 40 }, field: "bcrypt_cost"},
		{name: "max below min", mutate: func(o *auth.Options) { o.PasswordMinLength = 10; o.PasswordMaxLength = 5 }, field: "password_max_length"},
		{name: "max above bcrypt input", mutate: func(o *auth.Options) { o.PasswordMaxLength = 100 }, field: "password_max_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)

			err := opts.Validate()
			if !assert.Error(t, err) {
				return
			}
			assert.Equal(t, auth.ReasonInvalidConfig, auth.ReasonOf(err))

			var richErr *goerrors.Error
			assert.True(t, goerrors.As(err, &richErr))
			var fields []string
			for _, fe := range richErr.ValidationErrors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	assert.NoError(t, testOptions().Validate())
}

func TestOptions_MustValidate(t *testing.T) {
	assert.Panics(t, func() { auth.Options{}.MustValidate() })
	require.NotPanics(t, func() { testOptions().MustValidate() })
}
