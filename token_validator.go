package auth

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (*JWTClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*JWTClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*JWTClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

func normalizeValidator(v TokenValidator) TokenValidator {
	if v == nil {
		return TokenValidatorFunc(nil)
	}
	return v
}
