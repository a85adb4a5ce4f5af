package auth

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Authenticator verifies credentials and mints tokens for verified identities.
type Authenticator struct {
	lookup            IdentityLookup
	codec             *TokenCodec
	hasher            PasswordHasher
	logger            Logger
	activitySink      ActivitySink
	claimsDecorator   ClaimsDecorator
	strictEnumeration bool
	dummyHash         func() (string, error)
}

// NewAuthenticator builds an Authenticator and its TokenCodec from cfg.
func NewAuthenticator(lookup IdentityLookup, cfg Config) (*Authenticator, error) {
	if lookup == nil {
		return nil, goerrors.New("identity lookup is required", goerrors.CategoryBadInput)
	}

	options := OptionsFromConfig(cfg)
	codec, err := NewTokenCodec(options)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		lookup:            lookup,
		codec:             codec,
		logger:            defaultLogger(),
		activitySink:      noopActivitySink{},
		claimsDecorator:   noopClaimsDecorator{},
		strictEnumeration: options.StrictEnumeration,
	}

	return a.WithHasher(NewBcryptHasher(options.BcryptCost)), nil
}

// WithHasher replaces the credential hasher.
func (a *Authenticator) WithHasher(hasher PasswordHasher) *Authenticator {
	if hasher == nil {
		hasher = NewBcryptHasher(passwordHashCost())
	}
	a.hasher = hasher
	a.dummyHash = sync.OnceValues(func() (string, error) {
		return hasher.HashPassword(uuid.NewString())
	})
	return a
}

func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	a.logger = normalizeLogger(logger)
	return a
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (a *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching tokens.
func (a *Authenticator) WithClaimsDecorator(decorator ClaimsDecorator) *Authenticator {
	a.claimsDecorator = normalizeClaimsDecorator(decorator)
	return a
}

// WithStrictEnumeration reports inactive accounts as invalid credentials.
func (a *Authenticator) WithStrictEnumeration(strict bool) *Authenticator {
	a.strictEnumeration = strict
	return a
}

// WithTokenCodec replaces the codec built from the configuration.
func (a *Authenticator) WithTokenCodec(codec *TokenCodec) *Authenticator {
	if codec != nil {
		a.codec = codec
	}
	return a
}

// TokenCodec returns the codec used to mint tokens
func (a *Authenticator) TokenCodec() *TokenCodec {
	return a.codec
}

// Hasher returns the credential hasher
func (a *Authenticator) Hasher() PasswordHasher {
	return a.hasher
}

// Authenticate verifies secret against the identity found for identifier.
// Unknown identifiers and wrong secrets produce the same error.
func (a *Authenticator) Authenticate(ctx context.Context, identifier, secret string) (Identity, error) {
	identity, err := a.lookup.BySubject(ctx, identifier)
	if err != nil && !isNotFound(err) {
		a.logger.Error("authenticate lookup failed", "error", err)
		a.emitLoginFailure(ctx, identifier, nil, ReasonNone)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "identity lookup failed")
	}

	if err != nil || isNilIdentity(identity) {
		a.burnVerify(secret)
		a.logger.Debug("authenticate unknown identifier")
		a.emitLoginFailure(ctx, identifier, nil, ReasonInvalidCredentials)
		return nil, withCause(ErrInvalidCredentials, nil, nil)
	}

	if !a.hasher.VerifyPassword(secret, identity.PasswordHash()) {
		a.logger.Debug("authenticate credential mismatch", "user_id", identity.ID())
		a.emitLoginFailure(ctx, identifier, identity, ReasonInvalidCredentials)
		return nil, withCause(ErrInvalidCredentials, nil, nil)
	}

	if !identity.IsActive() {
		a.logger.Warn("authenticate blocked inactive identity", "user_id", identity.ID())
		a.emitLoginFailure(ctx, identifier, identity, ReasonInactiveAccount)
		if a.strictEnumeration {
			return nil, withCause(ErrInvalidCredentials, nil, nil)
		}
		return nil, withCause(ErrInactiveAccount, nil, nil)
	}

	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     actorFromIdentity(identity),
		UserID:    identity.ID(),
	})

	return identity, nil
}

// IssueAccessToken mints an access token with the identity id as subject and
// the configured access TTL.
func (a *Authenticator) IssueAccessToken(ctx context.Context, identity Identity, scopes ...string) (string, error) {
	return a.mint(ctx, identity, ScopedTokenOptions{
		Purpose: PurposeAccess,
		Scopes:  scopes,
	})
}

// IssuePasswordResetToken mints a reset token for the identity email, falling
// back to the id. It shares the signing key and algorithm with access tokens.
func (a *Authenticator) IssuePasswordResetToken(ctx context.Context, identity Identity) (string, error) {
	if isNilIdentity(identity) {
		return "", goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	subject := identity.Email()
	if subject == "" {
		subject = identity.ID()
	}

	return a.mint(ctx, identity, ScopedTokenOptions{
		Subject: subject,
		Purpose: PurposePasswordReset,
	})
}

// Login authenticates and issues an access token in one step.
func (a *Authenticator) Login(ctx context.Context, identifier, secret string, scopes ...string) (string, Identity, error) {
	identity, err := a.Authenticate(ctx, identifier, secret)
	if err != nil {
		return "", nil, err
	}

	token, err := a.IssueAccessToken(ctx, identity, scopes...)
	if err != nil {
		return "", nil, err
	}

	return token, identity, nil
}

func (a *Authenticator) mint(ctx context.Context, identity Identity, opts ScopedTokenOptions) (string, error) {
	if isNilIdentity(identity) {
		return "", goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	token, expiresAt, err := MintScopedToken(ctx, a.codec, identity, a.claimsDecorator, opts)
	if err != nil {
		a.logger.Error("token mint failed", "user_id", identity.ID(), "purpose", opts.Purpose, "error", err)
		return "", err
	}

	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventTokenIssued,
		Actor:     actorFromIdentity(identity),
		UserID:    identity.ID(),
		Metadata: map[string]any{
			"purpose":    string(opts.Purpose),
			"expires_at": expiresAt,
			"scopes":     len(opts.Scopes),
		},
	})

	return token, nil
}

// burnVerify spends the same bcrypt work on unknown identifiers as on known ones.
func (a *Authenticator) burnVerify(secret string) {
	hash, err := a.dummyHash()
	if err != nil {
		a.logger.Warn("dummy hash unavailable", "error", err)
		return
	}
	a.hasher.VerifyPassword(secret, hash)
}

func (a *Authenticator) emitLoginFailure(ctx context.Context, identifier string, identity Identity, reason Reason) {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     actorFromIdentity(identity),
		Reason:    reason,
		Metadata: map[string]any{
			"identifier": identifier,
		},
	}
	if !isNilIdentity(identity) {
		event.UserID = identity.ID()
	}
	recordActivity(ctx, a.activitySink, a.logger, event)
}

func actorFromIdentity(identity Identity) ActorRef {
	if isNilIdentity(identity) {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

func isNotFound(err error) bool {
	return goerrors.IsNotFound(err) || IsReason(err, ReasonIdentityNotFound)
}
