package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultSigningMethod is the only algorithm tokens are signed or accepted with
	DefaultSigningMethod = "HS256"
	// DefaultAccessTokenTTL access tokens live a week
	DefaultAccessTokenTTL = 7 * 24 * time.Hour
	// DefaultResetTokenTTL password reset tokens live two days
	DefaultResetTokenTTL = 48 * time.Hour
	// MinSigningKeyLength HS256 keys shorter than the hash output are refused
	MinSigningKeyLength = 32
)

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetResetTokenTTL() time.Duration
	GetBcryptCost() int
	GetPasswordMinLength() int
	GetPasswordMaxLength() int
	GetStrictEnumeration() bool
}

// Options is the immutable Config implementation. Build it once at startup
// and share it; nothing in the package mutates it.
type Options struct {
	SigningKey        string        `koanf:"signing_key" json:"signing_key"`
	SigningMethod     string        `koanf:"signing_method" json:"signing_method"`
	Issuer            string        `koanf:"issuer" json:"issuer"`
	Audience          []string      `koanf:"audience" json:"audience"`
	AccessTokenTTL    time.Duration `koanf:"access_token_ttl" json:"access_token_ttl"`
	ResetTokenTTL     time.Duration `koanf:"reset_token_ttl" json:"reset_token_ttl"`
	BcryptCost        int           `koanf:"bcrypt_cost" json:"bcrypt_cost"`
	PasswordMinLength int           `koanf:"password_min_length" json:"password_min_length"`
	PasswordMaxLength int           `koanf:"password_max_length" json:"password_max_length"`
	StrictEnumeration bool          `koanf:"strict_enumeration" json:"strict_enumeration"`
}

var _ Config = Options{}

// DefaultOptions returns options with every field but the signing key set.
func DefaultOptions() Options {
	return Options{
		SigningMethod:     DefaultSigningMethod,
		AccessTokenTTL:    DefaultAccessTokenTTL,
		ResetTokenTTL:     DefaultResetTokenTTL,
		BcryptCost:        passwordHashCost(),
		PasswordMinLength: DefaultPasswordMinLength,
		PasswordMaxLength: DefaultPasswordMaxLength,
	}
}

// OptionsFromConfig snapshots any Config into Options, filling zero values
// with defaults.
func OptionsFromConfig(cfg Config) Options {
	if cfg == nil {
		return DefaultOptions()
	}
	if opts, ok := cfg.(Options); ok {
		return opts.withDefaults()
	}
	if opts, ok := cfg.(*Options); ok && opts != nil {
		return opts.withDefaults()
	}

	var aud []string
	if a := cfg.GetAudience(); len(a) > 0 {
		aud = append(aud, a...)
	}

	return Options{
		SigningKey:        cfg.GetSigningKey(),
		SigningMethod:     cfg.GetSigningMethod(),
		Issuer:            cfg.GetIssuer(),
		Audience:          aud,
		AccessTokenTTL:    cfg.GetAccessTokenTTL(),
		ResetTokenTTL:     cfg.GetResetTokenTTL(),
		BcryptCost:        cfg.GetBcryptCost(),
		PasswordMinLength: cfg.GetPasswordMinLength(),
		PasswordMaxLength: cfg.GetPasswordMaxLength(),
		StrictEnumeration: cfg.GetStrictEnumeration(),
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SigningMethod == "" {
		o.SigningMethod = def.SigningMethod
	}
	if o.AccessTokenTTL == 0 {
		o.AccessTokenTTL = def.AccessTokenTTL
	}
	if o.ResetTokenTTL == 0 {
		o.ResetTokenTTL = def.ResetTokenTTL
	}
	if o.BcryptCost == 0 {
		o.BcryptCost = def.BcryptCost
	}
	if o.PasswordMinLength == 0 {
		o.PasswordMinLength = def.PasswordMinLength
	}
	if o.PasswordMaxLength == 0 {
		o.PasswordMaxLength = def.PasswordMaxLength
	}
	if len(o.Audience) > 0 {
		o.Audience = append([]string(nil), o.Audience...)
	}
	return o
}

// Validate checks the options are usable for signing and hashing.
func (o Options) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.SigningKey, validation.Required, validation.Length(MinSigningKeyLength, 0)),
		validation.Field(&o.SigningMethod, validation.Required, validation.In(jwt.SigningMethodHS256.Alg())),
		validation.Field(&o.AccessTokenTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.ResetTokenTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.BcryptCost, validation.Min(minBcryptCost), validation.Max(maxBcryptCost)),
		validation.Field(&o.PasswordMinLength, validation.Min(1)),
		validation.Field(&o.PasswordMaxLength, validation.Min(o.PasswordMinLength), validation.Max(maxBcryptInput)),
	)
	if err != nil {
		clone := ErrInvalidConfig.Clone()
		clone.Source = err
		if verr := goerrors.FromOzzoValidation(err, clone.Message); verr != nil {
			clone.ValidationErrors = verr.ValidationErrors
		}
		return clone
	}
	return nil
}

// MustValidate panics on invalid options. Use it only in main.
func (o Options) MustValidate() Options {
	if err := o.Validate(); err != nil {
		panic(goerrors.Wrap(err, goerrors.CategoryValidation, "auth options"))
	}
	return o
}

func (o Options) GetSigningKey() string            { return o.SigningKey }
func (o Options) GetSigningMethod() string         { return o.SigningMethod }
func (o Options) GetIssuer() string                { return o.Issuer }
func (o Options) GetAudience() []string            { return o.Audience }
func (o Options) GetAccessTokenTTL() time.Duration { return o.AccessTokenTTL }
func (o Options) GetResetTokenTTL() time.Duration  { return o.ResetTokenTTL }
func (o Options) GetBcryptCost() int               { return o.BcryptCost }
func (o Options) GetPasswordMinLength() int        { return o.PasswordMinLength }
func (o Options) GetPasswordMaxLength() int        { return o.PasswordMaxLength }
func (o Options) GetStrictEnumeration() bool       { return o.StrictEnumeration }
