package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" example:"eyJhbGciOiJIUzI1NiIs..." doc:"Password reset token"`
	Password string `json:"new_password" example:"some_secret_word" doc:"Password"`
}

func (m FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.Password, validation.Required),
	)
}

// FinalizePasswordResetHandler redeems a password reset token. Reset tokens
// are stateless, they stay valid until they expire.
type FinalizePasswordResetHandler struct {
	resolver *Resolver
	store    CredentialStore
	hasher   PasswordHasher
	policy   PasswordPolicy
	timeout  time.Duration
	activity ActivitySink
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(resolver *Resolver, store CredentialStore, hasher PasswordHasher) *FinalizePasswordResetHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(passwordHashCost())
	}
	return &FinalizePasswordResetHandler{
		resolver: resolver,
		store:    store,
		hasher:   hasher,
		policy:   DefaultPasswordPolicy(),
		timeout:  10 * time.Second,
		activity: noopActivitySink{},
		logger:   defaultLogger(),
	}
}

func (h *FinalizePasswordResetHandler) WithPolicy(policy PasswordPolicy) *FinalizePasswordResetHandler {
	h.policy = policy
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, msg FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, msg FinalizePasswordResetMessage) error {
	if err := msg.Validate(); err != nil {
		return goerrors.FromOzzoValidation(err, "invalid password reset request")
	}

	if h.resolver == nil || h.store == nil {
		return goerrors.New("password reset handler is not configured", goerrors.CategoryInternal)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	identity, err := h.resolver.VerifyPasswordResetToken(ctx, msg.Token)
	if err != nil {
		recordPasswordFailure(ctx, h.activity, h.logger, "", "reset", err)
		return err
	}

	userID := identity.ID()

	hash, err := hashWithPolicy(h.hasher, h.policy, msg.Password)
	if err != nil {
		recordPasswordFailure(ctx, h.activity, h.logger, userID, "reset", err)
		return err
	}

	if err := h.store.PersistCredentialHash(ctx, userID, hash); err != nil {
		h.logger.Error("password reset persist failed", "user_id", userID, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     actorFromIdentity(identity),
		UserID:    userID,
		Metadata:  map[string]any{"flow": "reset"},
	})

	return nil
}
