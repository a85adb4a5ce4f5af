package auth

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultPasswordMinLength = 8
	DefaultPasswordMaxLength = 40
)

// PasswordPolicy bounds the length of new passwords, in characters.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy accepts 8 to 40 characters
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength: DefaultPasswordMinLength,
		MaxLength: DefaultPasswordMaxLength,
	}
}

// PasswordPolicyFromConfig reads the password bounds from cfg.
func PasswordPolicyFromConfig(cfg Config) PasswordPolicy {
	opts := OptionsFromConfig(cfg)
	return PasswordPolicy{
		MinLength: opts.PasswordMinLength,
		MaxLength: opts.PasswordMaxLength,
	}
}

func (p PasswordPolicy) normalized() PasswordPolicy {
	if p.MinLength <= 0 {
		p.MinLength = DefaultPasswordMinLength
	}
	if p.MaxLength <= 0 || p.MaxLength > maxBcryptInput {
		p.MaxLength = DefaultPasswordMaxLength
	}
	if p.MaxLength < p.MinLength {
		p.MaxLength = p.MinLength
	}
	return p
}

// Validate reports ErrInvalidPassword when password breaks the policy.
func (p PasswordPolicy) Validate(password string) error {
	p = p.normalized()
	err := validation.Validate(password,
		validation.Required,
		validation.RuneLength(p.MinLength, p.MaxLength),
	)
	if err != nil {
		return withCause(ErrInvalidPassword, err, map[string]any{
			"min_length": p.MinLength,
			"max_length": p.MaxLength,
		})
	}
	return nil
}

// PrepareCredentialChange checks a password change for identity and returns
// the hash of next. Persisting the hash is left to the caller.
func PrepareCredentialChange(hasher PasswordHasher, policy PasswordPolicy, identity Identity, current, next string) (string, error) {
	if hasher == nil {
		return "", goerrors.New("password hasher is required", goerrors.CategoryInternal)
	}
	if isNilIdentity(identity) {
		return "", withCause(ErrUnauthenticated, nil, nil)
	}

	if !hasher.VerifyPassword(current, identity.PasswordHash()) {
		return "", withCause(ErrIncorrectPassword, nil, nil)
	}

	if current == next {
		return "", withCause(ErrPasswordReuse, nil, nil)
	}

	return hashWithPolicy(hasher, policy, next)
}

func hashWithPolicy(hasher PasswordHasher, policy PasswordPolicy, password string) (string, error) {
	if err := policy.Validate(password); err != nil {
		return "", err
	}

	hash, err := hasher.HashPassword(password)
	if err != nil {
		return "", err
	}

	return hash, nil
}
