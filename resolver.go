package auth

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const bearerScheme = "bearer"

// Resolver turns a bearer token into an identity on every request. Nothing is
// cached, the identity is looked up again each time so deactivation and
// deletion take effect immediately.
type Resolver struct {
	lookup       IdentityLookup
	validator    TokenValidator
	logger       Logger
	activitySink ActivitySink
}

// NewResolver returns a Resolver that decodes tokens with validator.
func NewResolver(lookup IdentityLookup, validator TokenValidator) *Resolver {
	return &Resolver{
		lookup:       lookup,
		validator:    normalizeValidator(validator),
		logger:       defaultLogger(),
		activitySink: noopActivitySink{},
	}
}

func (r *Resolver) WithLogger(logger Logger) *Resolver {
	r.logger = normalizeLogger(logger)
	return r
}

// WithActivitySink configures an ActivitySink for resolve events.
func (r *Resolver) WithActivitySink(sink ActivitySink) *Resolver {
	r.activitySink = normalizeActivitySink(sink)
	return r
}

// Resolve returns the active identity behind bearer. Every token problem is
// reported as ErrUnauthenticated, use DecodeReason for the underlying cause.
func (r *Resolver) Resolve(ctx context.Context, bearer string, requiredScopes ...string) (Identity, error) {
	identity, _, err := r.ResolveClaims(ctx, bearer, requiredScopes...)
	return identity, err
}

// ResolveClaims is Resolve that also returns the decoded claims.
func (r *Resolver) ResolveClaims(ctx context.Context, bearer string, requiredScopes ...string) (Identity, *JWTClaims, error) {
	claims, err := r.decode(bearer)
	if err != nil {
		return nil, nil, r.fail(ctx, "", err)
	}

	if claims.Purpose() != PurposeAccess {
		return nil, nil, r.fail(ctx, "", unauthenticated(withCause(ErrTokenPurpose, nil, map[string]any{
			"purpose": string(claims.Purpose()),
		})))
	}

	identity, err := r.lookupIdentity(ctx, claims.Subject(), r.lookupByID)
	if err != nil {
		return nil, nil, r.fail(ctx, "", err)
	}

	if !identity.IsActive() {
		return nil, nil, r.fail(ctx, identity.ID(), withCause(ErrInactiveAccount, nil, nil))
	}

	if missing := claims.MissingScopes(requiredScopes...); len(missing) > 0 {
		return nil, nil, r.fail(ctx, identity.ID(), withCause(ErrInsufficientScope, nil, map[string]any{
			"missing_scopes": missing,
		}))
	}

	recordActivity(ctx, r.activitySink, r.logger, ActivityEvent{
		EventType: ActivityEventResolveSuccess,
		Actor:     actorFromIdentity(identity),
		UserID:    identity.ID(),
	})

	return identity, claims, nil
}

// VerifyPasswordResetToken accepts only password reset tokens and returns the
// active identity they were issued for.
func (r *Resolver) VerifyPasswordResetToken(ctx context.Context, token string) (Identity, error) {
	claims, err := r.decode(token)
	if err != nil {
		return nil, r.fail(ctx, "", err)
	}

	if claims.Purpose() != PurposePasswordReset {
		return nil, r.fail(ctx, "", unauthenticated(withCause(ErrTokenPurpose, nil, map[string]any{
			"purpose": string(claims.Purpose()),
		})))
	}

	identity, err := r.lookupIdentity(ctx, claims.Subject(), r.lookupBySubject)
	if err != nil {
		return nil, r.fail(ctx, "", err)
	}

	if !identity.IsActive() {
		return nil, r.fail(ctx, identity.ID(), withCause(ErrInactiveAccount, nil, nil))
	}

	return identity, nil
}

func (r *Resolver) decode(bearer string) (*JWTClaims, error) {
	raw := StripBearer(bearer)
	if raw == "" {
		return nil, unauthenticated(withCause(ErrTokenMalformed, nil, map[string]any{"token": "missing"}))
	}

	claims, err := r.validator.Validate(raw)
	if err != nil {
		return nil, unauthenticated(err)
	}
	if claims == nil {
		return nil, unauthenticated(ErrTokenMalformed)
	}

	return claims, nil
}

// Access tokens carry the identity id and are looked up strictly by id.
// Reset tokens carry the email and go through BySubject.
func (r *Resolver) lookupByID(ctx context.Context, id string) (Identity, error) {
	return r.lookup.ByID(ctx, id)
}

func (r *Resolver) lookupBySubject(ctx context.Context, subject string) (Identity, error) {
	return r.lookup.BySubject(ctx, subject)
}

func (r *Resolver) lookupIdentity(ctx context.Context, subject string, find func(context.Context, string) (Identity, error)) (Identity, error) {
	if r.lookup == nil {
		return nil, goerrors.New("identity lookup is required", goerrors.CategoryInternal)
	}

	identity, err := find(ctx, subject)
	if err != nil {
		if isNotFound(err) {
			return nil, unauthenticated(err)
		}
		r.logger.Error("resolve lookup failed", "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "identity lookup failed")
	}

	if isNilIdentity(identity) {
		return nil, unauthenticated(withCause(ErrIdentityNotFound, nil, nil))
	}

	return identity, nil
}

func (r *Resolver) fail(ctx context.Context, userID string, err error) error {
	reason := ReasonOf(err)
	r.logger.Debug("resolve denied", "reason", reason, "decode_reason", DecodeReason(err))

	recordActivity(ctx, r.activitySink, r.logger, ActivityEvent{
		EventType: ActivityEventResolveFailure,
		Actor:     ActorRef{ID: userID, Type: "user"},
		UserID:    userID,
		Reason:    reason,
		Metadata: map[string]any{
			metaDecodeReason: DecodeReason(err),
		},
	})

	return err
}

// unauthenticated folds a decode or lookup failure into ErrUnauthenticated,
// keeping the original reason in metadata and the error as Source.
func unauthenticated(cause error) error {
	return withCause(ErrUnauthenticated, cause, map[string]any{
		metaDecodeReason: ReasonOf(cause),
	})
}

// StripBearer removes an optional, case insensitive "Bearer " prefix.
func StripBearer(value string) string {
	value = strings.TrimSpace(value)
	scheme, rest, found := strings.Cut(value, " ")
	if found && strings.EqualFold(scheme, bearerScheme) {
		return strings.TrimSpace(rest)
	}
	return value
}
