package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenCodec signs and decodes HS256 tokens with a single process wide key.
type TokenCodec struct {
	signingKey []byte
	method     jwt.SigningMethod
	issuer     string
	audience   jwt.ClaimStrings
	accessTTL  time.Duration
	resetTTL   time.Duration
	now        func() time.Time
	logger     Logger
}

var _ TokenValidator = (*TokenCodec)(nil)

// WithClock injects the time source used for iat/exp and expiry checks.
func (tc *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	if now != nil {
		tc.now = now
	}
	return tc
}

// WithLogger sets the logger used by the codec
func (tc *TokenCodec) WithLogger(logger Logger) *TokenCodec {
	tc.logger = normalizeLogger(logger)
	return tc
}

// NewTokenCodec validates cfg and builds a codec
func NewTokenCodec(cfg Config) (*TokenCodec, error) {
	options := OptionsFromConfig(cfg)
	if err := options.Validate(); err != nil {
		return nil, err
	}

	var aud jwt.ClaimStrings
	if len(options.Audience) > 0 {
		aud = append(aud, options.Audience...)
	}

	return &TokenCodec{
		signingKey: []byte(options.SigningKey),
		method:     jwt.SigningMethodHS256,
		issuer:     options.Issuer,
		audience:   aud,
		accessTTL:  options.AccessTokenTTL,
		resetTTL:   options.ResetTokenTTL,
		now:        time.Now,
		logger:     defaultLogger(),
	}, nil
}

// AccessTTL is the default lifetime of access tokens
func (tc *TokenCodec) AccessTTL() time.Duration {
	return tc.accessTTL
}

// ResetTTL is the default lifetime of password reset tokens
func (tc *TokenCodec) ResetTTL() time.Duration {
	return tc.resetTTL
}

func (tc *TokenCodec) clock() time.Time {
	return tc.now().UTC()
}

// Issue mints an access token for subject. A zero ttl uses the configured
// access TTL, a negative ttl is kept as is and yields an expired token.
func (tc *TokenCodec) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	claims, err := tc.NewClaims(subject, scopes, ttl, PurposeAccess)
	if err != nil {
		return "", err
	}
	return tc.IssueClaims(claims)
}

// NewClaims prepares claims without signing them.
func (tc *TokenCodec) NewClaims(subject string, scopes []string, ttl time.Duration, purpose TokenPurpose) (*JWTClaims, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, goerrors.New("token subject is required", goerrors.CategoryBadInput).
			WithTextCode(string(ReasonInvalidInput))
	}

	if ttl == 0 {
		ttl = tc.accessTTL
		if purpose == PurposePasswordReset {
			ttl = tc.resetTTL
		}
	}

	now := tc.clock()

	var aud jwt.ClaimStrings
	if len(tc.audience) > 0 {
		aud = append(aud, tc.audience...)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tc.issuer,
			Subject:   subject,
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		TokenUsage: purpose,
	}

	if len(scopes) > 0 {
		claims.ScopeList = append([]string(nil), scopes...)
	}

	return claims, nil
}

// IssueClaims signs prepared claims. Claims without an expiry are refused.
func (tc *TokenCodec) IssueClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	if claims.ExpiresAt == nil {
		return "", goerrors.New("claims must carry an expiry", goerrors.CategoryInternal).
			WithTextCode(string(ReasonMalformedToken))
	}

	token := jwt.NewWithClaims(tc.method, claims)

	signedString, err := token.SignedString(tc.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Decode verifies the signature and then the claims of tokenString.
func (tc *TokenCodec) Decode(tokenString string) (*JWTClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{tc.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tc.clock),
	}
	if tc.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(tc.issuer))
	}
	if len(tc.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(tc.audience...))
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method == nil || t.Method.Alg() != tc.method.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return tc.signingKey, nil
	}, parserOptions...)

	if err != nil {
		decodeErr := classifyDecodeError(err)
		tc.logger.Debug("token decode failed", "reason", ReasonOf(decodeErr), "error", err)
		return nil, decodeErr
	}

	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	if strings.TrimSpace(claims.Subject()) == "" {
		return nil, withCause(ErrTokenMalformed, nil, map[string]any{"claim": "sub"})
	}

	return claims, nil
}

// Validate satisfies TokenValidator
func (tc *TokenCodec) Validate(tokenString string) (*JWTClaims, error) {
	return tc.Decode(tokenString)
}

// classifyDecodeError maps jwt parser errors onto the token taxonomy. The
// parser checks the signature before it validates any claim, so an expired
// token with a bad signature is reported as a bad signature.
func classifyDecodeError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return withCause(ErrTokenMalformed, err, nil)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return withCause(ErrTokenBadSignature, err, nil)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return withCause(ErrTokenMalformed, err, map[string]any{"claim": "exp"})
	case errors.Is(err, jwt.ErrTokenExpired):
		return withCause(ErrTokenExpired, err, nil)
	default:
		return withCause(ErrTokenMalformed, err, nil)
	}
}
