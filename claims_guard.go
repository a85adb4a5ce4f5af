package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claimsSnapshot holds the claims a ClaimsDecorator must leave alone.
type claimsSnapshot struct {
	subject  string
	issuer   string
	tokenID  string
	purpose  TokenPurpose
	scopes   []string
	audience []string
	issued   *time.Time
	expires  *time.Time
}

func captureImmutableClaims(claims *JWTClaims) claimsSnapshot {
	rc := claims.RegisteredClaims
	return claimsSnapshot{
		subject:  rc.Subject,
		issuer:   rc.Issuer,
		tokenID:  rc.ID,
		purpose:  claims.TokenUsage,
		scopes:   slices.Clone(claims.ScopeList),
		audience: slices.Clone([]string(rc.Audience)),
		issued:   numericDateTime(rc.IssuedAt),
		expires:  numericDateTime(rc.ExpiresAt),
	}
}

// validate names the first protected claim that no longer matches.
func (snap claimsSnapshot) validate(claims *JWTClaims) error {
	rc := claims.RegisteredClaims
	checks := []struct {
		field string
		same  bool
	}{
		{"sub", rc.Subject == snap.subject},
		{"iss", rc.Issuer == snap.issuer},
		{"jti", rc.ID == snap.tokenID},
		{"purpose", claims.TokenUsage == snap.purpose},
		{"scopes", slices.Equal(claims.ScopeList, snap.scopes)},
		{"aud", slices.Equal([]string(rc.Audience), snap.audience)},
		{"iat", sameInstant(numericDateTime(rc.IssuedAt), snap.issued)},
		{"exp", sameInstant(numericDateTime(rc.ExpiresAt), snap.expires)},
	}

	for _, check := range checks {
		if !check.same {
			return immutableClaimViolation(check.field)
		}
	}
	return nil
}

func numericDateTime(date *jwt.NumericDate) *time.Time {
	if date == nil {
		return nil
	}
	t := date.Time
	return &t
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func immutableClaimViolation(field string) error {
	return withCause(ErrImmutableClaimMutation, nil, map[string]any{"claim": field})
}
