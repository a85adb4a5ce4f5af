package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ScopedTokenOptions controls how MintScopedToken issues tokens.
type ScopedTokenOptions struct {
	// TTL overrides the default token expiration. Zero uses the codec defaults
	// for the purpose.
	TTL time.Duration
	// Subject overrides the `sub` claim. Empty uses the identity id.
	Subject string
	// Purpose defaults to PurposeAccess.
	Purpose TokenPurpose
	// Scopes sets the optional scopes claim on the minted token.
	Scopes []string
}

// MintScopedToken mints a token for identity. The decorator may only add
// extension claims, any change to a registered claim or to the scopes is
// reported as ErrImmutableClaimMutation.
func MintScopedToken(ctx context.Context, codec *TokenCodec, identity Identity, decorator ClaimsDecorator, opts ScopedTokenOptions) (string, time.Time, error) {
	if codec == nil {
		return "", time.Time{}, goerrors.New("token codec is required", goerrors.CategoryBadInput)
	}
	if identity == nil {
		return "", time.Time{}, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	subject := opts.Subject
	if subject == "" {
		subject = identity.ID()
	}

	purpose := opts.Purpose
	if purpose == "" {
		purpose = PurposeAccess
	}

	claims, err := codec.NewClaims(subject, opts.Scopes, opts.TTL, purpose)
	if err != nil {
		return "", time.Time{}, err
	}

	snapshot := captureImmutableClaims(claims)
	if err := normalizeClaimsDecorator(decorator).Decorate(ctx, identity, claims); err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "claims decorator failed")
	}
	if err := snapshot.validate(claims); err != nil {
		return "", time.Time{}, err
	}

	token, err := codec.IssueClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, claims.Expires(), nil
}
