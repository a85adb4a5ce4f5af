package auth

import (
	"context"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of a resolved principal
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
	IsActive() bool
	IsSuperuser() bool
	PasswordHash() string
}

// IdentityLookup is implemented by the persistence layer. A missing identity
// is reported either as (nil, nil) or as an error matching ErrIdentityNotFound.
type IdentityLookup interface {
	BySubject(ctx context.Context, subject string) (Identity, error)
	ByID(ctx context.Context, id string) (Identity, error)
}

// CredentialStore persists a credential hash computed by the core.
type CredentialStore interface {
	PersistCredentialHash(ctx context.Context, identityID, newHash string) error
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) bool
}

// IdentityLookupFuncs adapts plain functions into an IdentityLookup.
type IdentityLookupFuncs struct {
	BySubjectFunc func(ctx context.Context, subject string) (Identity, error)
	ByIDFunc      func(ctx context.Context, id string) (Identity, error)
}

func (f IdentityLookupFuncs) BySubject(ctx context.Context, subject string) (Identity, error) {
	if f.BySubjectFunc == nil {
		return nil, nil
	}
	return f.BySubjectFunc(ctx, subject)
}

func (f IdentityLookupFuncs) ByID(ctx context.Context, id string) (Identity, error) {
	if f.ByIDFunc == nil {
		return nil, nil
	}
	return f.ByIDFunc(ctx, id)
}

// CredentialStoreFunc adapts a function into a CredentialStore.
type CredentialStoreFunc func(ctx context.Context, identityID, newHash string) error

func (f CredentialStoreFunc) PersistCredentialHash(ctx context.Context, identityID, newHash string) error {
	if f == nil {
		return nil
	}
	return f(ctx, identityID, newHash)
}

// defLogger sends messages to the logrus standard logger, turning the
// key/value args into fields.
type defLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps a logrus logger. A nil logger uses logrus.StandardLogger.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return defLogger{entry: l.WithField("component", "auth")}
}

func defaultLogger() Logger {
	return NewLogrusLogger(nil)
}

func (d defLogger) Debug(format string, args ...any) {
	d.with(args).Debug(format)
}

func (d defLogger) Info(format string, args ...any) {
	d.with(args).Info(format)
}

func (d defLogger) Warn(format string, args ...any) {
	d.with(args).Warn(format)
}

func (d defLogger) Error(format string, args ...any) {
	d.with(args).Error(format)
}

func (d defLogger) with(args []any) *logrus.Entry {
	entry := d.entry
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(args) == 0 {
		return entry
	}

	fields := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		if i+1 < len(args) {
			fields[key] = args[i+1]
		} else {
			fields[key] = "(MISSING)"
		}
	}
	return entry.WithFields(fields)
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defaultLogger()
	}
	return l
}
