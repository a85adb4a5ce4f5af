package auth

import "context"

// ClaimsDecorator can add extension claims (Metadata) before a token is signed.
// Registered claims, scopes and purpose are guarded and must stay untouched.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, identity Identity, claims *JWTClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, identity Identity, claims *JWTClaims) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, identity Identity, claims *JWTClaims) error {
	if f == nil {
		return nil
	}
	return f(ctx, identity, claims)
}

// ChainClaimsDecorators runs decorators in order and stops at the first error.
func ChainClaimsDecorators(decorators ...ClaimsDecorator) ClaimsDecorator {
	return ClaimsDecoratorFunc(func(ctx context.Context, identity Identity, claims *JWTClaims) error {
		for _, d := range decorators {
			if d == nil {
				continue
			}
			if err := d.Decorate(ctx, identity, claims); err != nil {
				return err
			}
		}
		return nil
	})
}

// IdentityMetadataDecorator copies the identity role and superuser flag into
// the token metadata, under "role" and "superuser". The resolver never
// trusts these values, it always reloads the identity.
func IdentityMetadataDecorator() ClaimsDecorator {
	return ClaimsDecoratorFunc(func(_ context.Context, identity Identity, claims *JWTClaims) error {
		if isNilIdentity(identity) || claims == nil {
			return nil
		}
		if claims.Metadata == nil {
			claims.Metadata = map[string]any{}
		}
		if role := identity.Role(); role != "" {
			claims.Metadata["role"] = role
		}
		claims.Metadata["superuser"] = identity.IsSuperuser()
		return nil
	})
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, Identity, *JWTClaims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}
