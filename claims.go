package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose tells access tokens and password reset tokens apart. Both
// are signed with the same key and algorithm.
type TokenPurpose string

const (
	PurposeAccess        TokenPurpose = "access"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// AuthClaims is the read-only view of decoded claims
type AuthClaims interface {
	Subject() string
	Scopes() []string
	HasScope(scope string) bool
	Purpose() TokenPurpose
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims. Only `sub` and
// `exp` are required on the wire.
type JWTClaims struct {
	jwt.RegisteredClaims
	ScopeList  []string       `json:"scopes,omitempty"`
	TokenUsage TokenPurpose   `json:"purpose,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"` // extension payload
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Scopes returns a copy of the granted scopes
func (c *JWTClaims) Scopes() []string {
	if len(c.ScopeList) == 0 {
		return nil
	}
	return append([]string(nil), c.ScopeList...)
}

// HasScope checks a single scope grant
func (c *JWTClaims) HasScope(scope string) bool {
	for _, s := range c.ScopeList {
		if s == scope {
			return true
		}
	}
	return false
}

// MissingScopes returns the required scopes the token was not granted.
func (c *JWTClaims) MissingScopes(required ...string) []string {
	var missing []string
	for _, scope := range required {
		if scope == "" {
			continue
		}
		if !c.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// Purpose returns the token purpose. Tokens without the claim are access tokens.
func (c *JWTClaims) Purpose() TokenPurpose {
	if c.TokenUsage == "" {
		return PurposeAccess
	}
	return c.TokenUsage
}

// ClaimsMetadata exposes metadata extensions for optional context enrichment.
func (c *JWTClaims) ClaimsMetadata() map[string]any {
	return c.Metadata
}

// Expires returns the expiration time in UTC
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time.UTC()
	}
	return time.Time{}
}

// IssuedAt returns the issued at time in UTC
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time.UTC()
	}
	return time.Time{}
}
