package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Reason is the typed cause attached to every denial produced by the
// authentication core. It doubles as the TextCode of the rich error.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonInvalidCredentials    Reason = "INVALID_CREDENTIALS"
	ReasonInactiveAccount       Reason = "INACTIVE_ACCOUNT"
	ReasonMalformedToken        Reason = "TOKEN_MALFORMED"
	ReasonBadSignature          Reason = "TOKEN_BAD_SIGNATURE"
	ReasonExpiredToken          Reason = "TOKEN_EXPIRED"
	ReasonTokenPurpose          Reason = "TOKEN_PURPOSE_MISMATCH"
	ReasonUnauthenticated       Reason = "UNAUTHENTICATED"
	ReasonInsufficientScope     Reason = "INSUFFICIENT_SCOPE"
	ReasonInsufficientPrivilege Reason = "INSUFFICIENT_PRIVILEGE"
	ReasonNotOwner              Reason = "NOT_OWNER"
	ReasonSelfActionForbidden   Reason = "SELF_ACTION_FORBIDDEN"
	ReasonInvalidInput          Reason = "INVALID_INPUT"
	ReasonIncorrectPassword     Reason = "INCORRECT_PASSWORD"
	ReasonPasswordReuse         Reason = "PASSWORD_REUSE"
	ReasonInvalidPassword       Reason = "INVALID_PASSWORD"
	ReasonIdentityNotFound      Reason = "IDENTITY_NOT_FOUND"
	ReasonImmutableClaim        Reason = "IMMUTABLE_CLAIM_MUTATION"
	ReasonInvalidConfig         Reason = "INVALID_CONFIG"
)

func (r Reason) String() string {
	return string(r)
}

// ErrInvalidCredentials is returned for unknown identifiers and wrong secrets alike.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(string(ReasonInvalidCredentials)).
	WithCode(goerrors.CodeUnauthorized)

// ErrInactiveAccount is returned when the identity exists but is disabled.
var ErrInactiveAccount = goerrors.New("inactive user", goerrors.CategoryAuth).
	WithTextCode(string(ReasonInactiveAccount)).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenMalformed the token could not be parsed or lacks mandatory claims
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(string(ReasonMalformedToken)).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenBadSignature the signature does not verify, or the token uses another algorithm
var ErrTokenBadSignature = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(string(ReasonBadSignature)).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired the token expiry is in the past
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(string(ReasonExpiredToken)).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenPurpose a token minted for one flow was presented to another
var ErrTokenPurpose = goerrors.New("token was issued for a different purpose", goerrors.CategoryAuth).
	WithTextCode(string(ReasonTokenPurpose)).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthenticated is the resolver's single answer for any token it can not turn into an identity.
var ErrUnauthenticated = goerrors.New("could not validate credentials", goerrors.CategoryAuth).
	WithTextCode(string(ReasonUnauthenticated)).
	WithCode(goerrors.CodeUnauthorized)

var ErrInsufficientScope = goerrors.New("not enough permissions", goerrors.CategoryAuthz).
	WithTextCode(string(ReasonInsufficientScope)).
	WithCode(goerrors.CodeUnauthorized)

var ErrInsufficientPrivilege = goerrors.New("the user doesn't have enough privileges", goerrors.CategoryAuthz).
	WithTextCode(string(ReasonInsufficientPrivilege)).
	WithCode(goerrors.CodeForbidden)

var ErrNotOwner = goerrors.New("not enough permissions on resource", goerrors.CategoryAuthz).
	WithTextCode(string(ReasonNotOwner)).
	WithCode(goerrors.CodeForbidden)

// ErrSelfActionForbidden superusers cannot delete themselves
var ErrSelfActionForbidden = goerrors.New("superusers cannot delete themselves", goerrors.CategoryAuthz).
	WithTextCode(string(ReasonSelfActionForbidden)).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidInput is returned when hashing an empty or oversized secret
var ErrInvalidInput = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(string(ReasonInvalidInput)).
	WithCode(goerrors.CodeBadRequest)

var ErrIncorrectPassword = goerrors.New("incorrect password", goerrors.CategoryValidation).
	WithTextCode(string(ReasonIncorrectPassword)).
	WithCode(goerrors.CodeBadRequest)

var ErrPasswordReuse = goerrors.New("new password cannot be the same as the current one", goerrors.CategoryValidation).
	WithTextCode(string(ReasonPasswordReuse)).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidPassword = goerrors.New("password does not satisfy policy", goerrors.CategoryValidation).
	WithTextCode(string(ReasonInvalidPassword)).
	WithCode(goerrors.CodeBadRequest)

// ErrIdentityNotFound is what lookups may return for missing identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(string(ReasonIdentityNotFound)).
	WithCode(goerrors.CodeNotFound)

// ErrImmutableClaimMutation a claims decorator touched a protected claim
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode(string(ReasonImmutableClaim)).
	WithCode(goerrors.CodeInternal)

// ErrInvalidConfig is returned by Options.Validate
var ErrInvalidConfig = goerrors.New("invalid auth configuration", goerrors.CategoryValidation).
	WithTextCode(string(ReasonInvalidConfig)).
	WithCode(goerrors.CodeBadRequest)

const metaDecodeReason = "decode_reason"

// ReasonOf returns the Reason carried by err, or ReasonNone when err is nil
// or not one of ours.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return ReasonNone
	}
	return Reason(richErr.TextCode)
}

// IsReason reports whether err carries the given reason.
func IsReason(err error, reason Reason) bool {
	return err != nil && ReasonOf(err) == reason
}

// DecodeReason returns why the token behind an ErrUnauthenticated failed to
// decode. For codec errors it is the same as ReasonOf.
func DecodeReason(err error) Reason {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return ReasonNone
	}
	if raw, ok := richErr.Metadata[metaDecodeReason]; ok {
		if r, ok := raw.(Reason); ok {
			return r
		}
		if s, ok := raw.(string); ok {
			return Reason(s)
		}
	}
	return Reason(richErr.TextCode)
}

// withCause clones a sentinel, keeping the reason but attaching metadata
// and the underlying error.
func withCause(base *goerrors.Error, source error, metadata map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	if source != nil {
		clone.Source = source
	}
	if len(metadata) == 0 {
		return clone
	}
	return clone.WithMetadata(metadata)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if ReasonOf(err) == ReasonExpiredToken || DecodeReason(err) == ReasonExpiredToken {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if ReasonOf(err) == ReasonMalformedToken {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
