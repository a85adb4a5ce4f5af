package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventTokenIssued           ActivityEventType = "auth.token.issued"
	ActivityEventResolveSuccess        ActivityEventType = "auth.resolve.success"
	ActivityEventResolveFailure        ActivityEventType = "auth.resolve.failure"
	ActivityEventAuthorizationAllowed  ActivityEventType = "auth.authorize.allowed"
	ActivityEventAuthorizationDenied   ActivityEventType = "auth.authorize.denied"
	ActivityEventPasswordChanged       ActivityEventType = "auth.password.changed"
	ActivityEventPasswordResetSuccess  ActivityEventType = "auth.password.reset"
	ActivityEventPasswordChangeFailure ActivityEventType = "auth.password.failure"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action. Reason
// is empty for successful outcomes.
type ActivityEvent struct {
	EventType   ActivityEventType
	Actor       ActorRef
	UserID      string
	Reason      Reason
	Requirement string
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans an event out to every sink, returning the first error.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity never fails the caller, sink errors are only logged.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}
