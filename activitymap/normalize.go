// Package activitymap turns auth activity events into flat audit records
// and writes them to a logrus logger.
package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-tokenauth"
	"github.com/sirupsen/logrus"
)

const (
	// MetadataKeyActorType stores auth.ActorRef.Type
	MetadataKeyActorType = "actor_type"
	// MetadataKeyReason stores the denial reason
	MetadataKeyReason = "reason"
	// MetadataKeyRequirement stores the requirement an authorization event evaluated
	MetadataKeyRequirement = "requirement"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
)

// Record is the audit shape of an auth.ActivityEvent.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	Outcome    string         `json:"outcome"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

// Normalize converts an auth.ActivityEvent into a Record. Events with a
// reason are "denied", all others "ok".
func Normalize(event auth.ActivityEvent, opts ...Option) Record {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	outcome := "ok"
	if event.Reason != auth.ReasonNone {
		outcome = "denied"
	}

	return Record{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Verb:       string(event.EventType),
		Outcome:    outcome,
		ObjectType: options.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithChannel sets the record channel
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType sets the record object type
func WithObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback is used when neither the actor nor the user id is set.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the time used for events without OccurredAt
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// LogSink writes every event as an audit log entry.
type LogSink struct {
	logger *logrus.Logger
	opts   []Option
}

var _ auth.ActivitySink = (*LogSink)(nil)

// NewLogSink returns a sink that logs to logger, or to the logrus standard
// logger when nil.
func NewLogSink(logger *logrus.Logger, opts ...Option) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger, opts: opts}
}

// Record implements auth.ActivitySink. Denials log at warn level.
func (s *LogSink) Record(_ context.Context, event auth.ActivityEvent) error {
	rec := Normalize(event, s.opts...)

	fields := logrus.Fields{
		"audit":       true,
		"actor_id":    rec.ActorID,
		"verb":        rec.Verb,
		"outcome":     rec.Outcome,
		"object_type": rec.ObjectType,
		"channel":     rec.Channel,
	}
	if rec.ObjectID != "" {
		fields["object_id"] = rec.ObjectID
	}
	for key, value := range rec.Metadata {
		if _, taken := fields[key]; !taken {
			fields[key] = value
		}
	}

	entry := s.logger.WithFields(fields).WithTime(rec.OccurredAt)
	if rec.Outcome == "denied" {
		entry.Warn("auth activity")
	} else {
		entry.Info("auth activity")
	}
	return nil
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key string, value string) {
		if value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	set(MetadataKeyActorType, strings.TrimSpace(event.Actor.Type))
	set(MetadataKeyReason, string(event.Reason))
	set(MetadataKeyRequirement, event.Requirement)

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
