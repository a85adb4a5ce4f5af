package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minBcryptCost  = bcrypt.MinCost
	maxBcryptCost  = bcrypt.MaxCost
	maxBcryptInput = 72
)

// BcryptHasher is the default PasswordHasher
type BcryptHasher struct {
	cost int
}

var _ PasswordHasher = BcryptHasher{}

// NewBcryptHasher creates a hasher, out of range costs fall back to the
// package default.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < minBcryptCost || cost > maxBcryptCost {
		cost = passwordHashCost()
	}
	return BcryptHasher{cost: cost}
}

// Cost returns the work factor used for new hashes
func (h BcryptHasher) Cost() int {
	if h.cost == 0 {
		return passwordHashCost()
	}
	return h.cost
}

// HashPassword generates a salted hash. Every call uses a fresh salt.
func (h BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", withCause(ErrInvalidInput, nil, nil)
	}
	if len(password) > maxBcryptInput {
		return "", withCause(ErrInvalidInput, nil, map[string]any{"max_bytes": maxBcryptInput})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost())
	if err != nil {
		return "", withCause(ErrInvalidInput, err, nil)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. Malformed hashes
// and empty input are a mismatch, never an error.
func (h BcryptHasher) VerifyPassword(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return NewBcryptHasher(passwordHashCost()).HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return withCause(ErrInvalidCredentials, nil, nil)
		}
		return withCause(ErrInvalidCredentials, err, nil)
	}
	return nil
}

// RandomPasswordHash hashes a random uuid, for accounts that must not be
// able to log in with a password until one is set.
func RandomPasswordHash() (string, error) {
	return HashPassword(uuid.NewString())
}
