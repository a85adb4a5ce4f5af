package auth

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

type ChangePasswordMessage struct {
	Identity        Identity `json:"-"`
	CurrentPassword string   `json:"current_password" example:"some_secret_word" doc:"Current password"`
	NewPassword     string   `json:"new_password" example:"another_secret_word" doc:"New password"`
}

func (m ChangePasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CurrentPassword, validation.Required),
		validation.Field(&m.NewPassword, validation.Required),
	)
}

// ChangePasswordHandler checks a password change against the current
// credential and hands the new hash to the CredentialStore.
type ChangePasswordHandler struct {
	store    CredentialStore
	hasher   PasswordHasher
	policy   PasswordPolicy
	activity ActivitySink
	logger   Logger
}

func NewChangePasswordHandler(store CredentialStore, hasher PasswordHasher) *ChangePasswordHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(passwordHashCost())
	}
	return &ChangePasswordHandler{
		store:    store,
		hasher:   hasher,
		policy:   DefaultPasswordPolicy(),
		activity: noopActivitySink{},
		logger:   defaultLogger(),
	}
}

func (h *ChangePasswordHandler) WithPolicy(policy PasswordPolicy) *ChangePasswordHandler {
	h.policy = policy
	return h
}

func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, msg ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password change")
	default:
	}

	if err := msg.Validate(); err != nil {
		return goerrors.FromOzzoValidation(err, "invalid password change request")
	}

	if isNilIdentity(msg.Identity) {
		return withCause(ErrUnauthenticated, nil, nil)
	}

	userID := msg.Identity.ID()

	hash, err := PrepareCredentialChange(h.hasher, h.policy, msg.Identity, msg.CurrentPassword, msg.NewPassword)
	if err != nil {
		h.logger.Info("password change rejected", "user_id", userID, "reason", ReasonOf(err))
		recordPasswordFailure(ctx, h.activity, h.logger, userID, "change", err)
		return err
	}

	if h.store == nil {
		return goerrors.New("credential store is required", goerrors.CategoryInternal)
	}

	if err := h.store.PersistCredentialHash(ctx, userID, hash); err != nil {
		h.logger.Error("password change persist failed", "user_id", userID, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     actorFromIdentity(msg.Identity),
		UserID:    userID,
		Metadata:  map[string]any{"flow": "change"},
	})

	return nil
}

func recordPasswordFailure(ctx context.Context, sink ActivitySink, logger Logger, userID, flow string, err error) {
	recordActivity(ctx, sink, logger, ActivityEvent{
		EventType: ActivityEventPasswordChangeFailure,
		Actor:     ActorRef{ID: userID, Type: "user"},
		UserID:    userID,
		Reason:    ReasonOf(err),
		Metadata:  map[string]any{"flow": flow},
	})
}
