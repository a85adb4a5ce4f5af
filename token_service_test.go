package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-tokenauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t, testNow)

	token, err := codec.Issue("user-1", []string{"items:read"}, time.Hour)
	require.NoError(t, err)

	claims, err := codec.Decode(token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.Subject())
	assert.Equal(t, []string{"items:read"}, claims.Scopes())
	assert.Equal(t, auth.PurposeAccess, claims.Purpose())
	assert.Equal(t, testNow.Add(time.Hour), claims.Expires())
	assert.Equal(t, testNow, claims.IssuedAt())
	assert.Equal(t, time.UTC, claims.Expires().Location())
	assert.Equal(t, time.UTC, claims.IssuedAt().Location())
	assert.NotEmpty(t, claims.ID)
}

func TestTokenCodec_ZeroTTLUsesDefaults(t *testing.T) {
	codec := newTestCodec(t, testNow)

	access, err := codec.NewClaims("user-1", nil, 0, auth.PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(auth.DefaultAccessTokenTTL), access.Expires())

	reset, err := codec.NewClaims("user-1", nil, 0, auth.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(auth.DefaultResetTokenTTL), reset.Expires())
}

func TestTokenCodec_NegativeTTLIsExpired(t *testing.T) {
	codec := newTestCodec(t, testNow)

	token, err := codec.Issue("user-1", nil, -time.Second)
	require.NoError(t, err)

	_, err = codec.Decode(token)
	require.Error(t, err)
	assert.True(t, auth.IsReason(err, auth.ReasonExpiredToken))
	assert.True(t, auth.IsTokenExpiredError(err))
}

func TestTokenCodec_ExpiresWithClock(t *testing.T) {
	now := testNow
	codec, err := auth.NewTokenCodec(testOptions())
	require.NoError(t, err)
	codec.WithClock(func() time.Time { return now })

	token, err := codec.Issue("user-1", nil, time.Minute)
	require.NoError(t, err)

	_, err = codec.Decode(token)
	require.NoError(t, err)

	now = testNow.Add(2 * time.Minute)
	_, err = codec.Decode(token)
	assert.True(t, auth.IsReason(err, auth.ReasonExpiredToken))
}

func TestTokenCodec_RejectsEmptySubject(t *testing.T) {
	codec := newTestCodec(t, testNow)

	_, err := codec.Issue("  ", nil, time.Hour)
	require.Error(t, err)
	assert.True(t, auth.IsReason(err, auth.ReasonInvalidInput))
}

func TestTokenCodec_BadSignature(t *testing.T) {
	codec := newTestCodec(t, testNow)

	token, err := codec.Issue("user-1", nil, time.Hour)
	require.NoError(t, err)

	otherOpts := testOptions()
	otherOpts.SigningKey = strings.Repeat("k", 40)
	other, err := auth.NewTokenCodec(otherOpts)
	require.NoError(t, err)
	other.WithClock(func() time.Time { return testNow })

	foreign, err := other.Issue("user-1", nil, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "flipped signature byte", token: flipSignature(token)},
		{name: "tampered payload", token: replacePayload(t, token, map[string]any{"sub": "admin", "exp": testNow.Add(time.Hour).Unix()})},
		{name: "different key", token: foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			require.Error(t, err)
			assert.Equal(t, auth.ReasonBadSignature, auth.ReasonOf(err))
		})
	}
}

func TestTokenCodec_AlgorithmIsPinned(t *testing.T) {
	codec := newTestCodec(t, testNow)
	claims := jwt.MapClaims{"sub": "user-1", "exp": testNow.Add(time.Hour).Unix()}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rs256, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(rsaKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "alg none", token: none},
		{name: "HS512 with the right key", token: hs512},
		{name: "RS256", token: rs256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			require.Error(t, err)
			assert.Equal(t, auth.ReasonBadSignature, auth.ReasonOf(err))
		})
	}
}

func TestTokenCodec_Malformed(t *testing.T) {
	codec := newTestCodec(t, testNow)
	key := []byte(testSigningKey)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}).SignedString(key)
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": testNow.Add(time.Hour).Unix()}).SignedString(key)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-token"},
		{name: "two segments", token: "abc.def"},
		{name: "missing exp", token: noExp},
		{name: "missing sub", token: noSub},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			require.Error(t, err)
			assert.Equal(t, auth.ReasonMalformedToken, auth.ReasonOf(err))
			assert.True(t, auth.IsMalformedError(err))
		})
	}
}

func TestTokenCodec_SignatureCheckedBeforeExpiry(t *testing.T) {
	codec := newTestCodec(t, testNow)

	token, err := codec.Issue("user-1", nil, -time.Hour)
	require.NoError(t, err)

	_, err = codec.Decode(flipSignature(token))
	assert.Equal(t, auth.ReasonBadSignature, auth.ReasonOf(err))
}

func TestTokenCodec_IssuerAndAudience(t *testing.T) {
	opts := testOptions()
	opts.Issuer = "tokenauth"
	opts.Audience = []string{"api"}

	codec, err := auth.NewTokenCodec(opts)
	require.NoError(t, err)

	token, err := codec.Issue("user-1", nil, time.Hour)
	require.NoError(t, err)

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "tokenauth", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"api"}, claims.Audience)

	plain, err := auth.NewTokenCodec(testOptions())
	require.NoError(t, err)
	anonymous, err := plain.Issue("user-1", nil, time.Hour)
	require.NoError(t, err)

	_, err = codec.Decode(anonymous)
	assert.Equal(t, auth.ReasonMalformedToken, auth.ReasonOf(err))
}

func TestNewTokenCodec_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.Options)
	}{
		{name: "missing key", mutate: func(o *auth.Options) { o.SigningKey = "" }},
		{name: "short key", mutate: func(o *auth.Options) { o.SigningKey = "short" }},
		{name: "other algorithm", mutate: func(o *auth.Options) { o.SigningMethod = "RS256" }},
		{name: "sub second ttl", mutate: func(o *auth.Options) { o.AccessTokenTTL = time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			_, err := auth.NewTokenCodec(opts)
			require.Error(t, err)
			assert.True(t, auth.IsReason(err, auth.ReasonInvalidConfig))
		})
	}
}

func TestTokenCodec_IssueClaimsRequiresExpiry(t *testing.T) {
	codec := newTestCodec(t, testNow)

	_, err := codec.IssueClaims(nil)
	assert.Error(t, err)

	_, err = codec.IssueClaims(&auth.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	assert.Error(t, err)
}

func flipSignature(token string) string {
	idx := strings.LastIndex(token, ".")
	sig := []byte(token[idx+1:])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	return token[:idx+1] + string(sig)
}

func replacePayload(t *testing.T, token string, claims map[string]any) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	parts[1] = base64.RawURLEncoding.EncodeToString(payload)
	return strings.Join(parts, ".")
}
