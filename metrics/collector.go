// Package metrics exposes auth activity as Prometheus counters.
package metrics

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-tokenauth"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultAllowed = "allowed"
	resultDenied  = "denied"
)

// Collector counts authentication, resolution, authorization and password
// change events. It implements auth.ActivitySink.
type Collector struct {
	AuthenticationsTotal *prometheus.CounterVec
	TokensIssuedTotal    *prometheus.CounterVec
	ResolutionsTotal     *prometheus.CounterVec
	AuthorizationsTotal  *prometheus.CounterVec
	PasswordChangesTotal *prometheus.CounterVec
}

var _ auth.ActivitySink = (*Collector)(nil)

// NewCollector creates and registers the counters on registry. A nil
// registry leaves them unregistered.
func NewCollector(registry prometheus.Registerer) *Collector {
	c := &Collector{
		AuthenticationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenauth_authentications_total",
				Help: "Total number of credential checks",
			},
			[]string{"result", "reason"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenauth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"purpose"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenauth_resolutions_total",
				Help: "Total number of bearer token resolutions",
			},
			[]string{"result", "reason"},
		),
		AuthorizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenauth_authorizations_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"requirement", "result", "reason"},
		),
		PasswordChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenauth_password_changes_total",
				Help: "Total number of password changes and resets",
			},
			[]string{"flow", "result"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			c.AuthenticationsTotal,
			c.TokensIssuedTotal,
			c.ResolutionsTotal,
			c.AuthorizationsTotal,
			c.PasswordChangesTotal,
		)
	}

	return c
}

// Record implements auth.ActivitySink
func (c *Collector) Record(_ context.Context, event auth.ActivityEvent) error {
	reason := reasonLabel(event)

	switch event.EventType {
	case auth.ActivityEventLoginSuccess:
		c.AuthenticationsTotal.WithLabelValues(resultSuccess, reason).Inc()
	case auth.ActivityEventLoginFailure:
		c.AuthenticationsTotal.WithLabelValues(resultFailure, reason).Inc()
	case auth.ActivityEventTokenIssued:
		c.TokensIssuedTotal.WithLabelValues(metadataString(event, "purpose")).Inc()
	case auth.ActivityEventResolveSuccess:
		c.ResolutionsTotal.WithLabelValues(resultSuccess, reason).Inc()
	case auth.ActivityEventResolveFailure:
		c.ResolutionsTotal.WithLabelValues(resultFailure, reason).Inc()
	case auth.ActivityEventAuthorizationAllowed:
		c.AuthorizationsTotal.WithLabelValues(requirementKind(event.Requirement), resultAllowed, reason).Inc()
	case auth.ActivityEventAuthorizationDenied:
		c.AuthorizationsTotal.WithLabelValues(requirementKind(event.Requirement), resultDenied, reason).Inc()
	case auth.ActivityEventPasswordChanged, auth.ActivityEventPasswordResetSuccess:
		c.PasswordChangesTotal.WithLabelValues(metadataString(event, "flow"), resultSuccess).Inc()
	case auth.ActivityEventPasswordChangeFailure:
		c.PasswordChangesTotal.WithLabelValues(metadataString(event, "flow"), resultFailure).Inc()
	}

	return nil
}

// reasonLabel prefers the decode reason so token failures are split by cause.
func reasonLabel(event auth.ActivityEvent) string {
	if raw, ok := event.Metadata["decode_reason"]; ok {
		switch v := raw.(type) {
		case auth.Reason:
			if v != auth.ReasonNone {
				return strings.ToLower(string(v))
			}
		case string:
			if v != "" {
				return strings.ToLower(v)
			}
		}
	}
	if event.Reason == auth.ReasonNone {
		return "none"
	}
	return strings.ToLower(string(event.Reason))
}

// requirementKind drops the target id so labels stay low cardinality.
func requirementKind(requirement string) string {
	kind, _, _ := strings.Cut(requirement, ":")
	if kind == "" {
		return "unknown"
	}
	return kind
}

func metadataString(event auth.ActivityEvent, key string) string {
	if v, ok := event.Metadata[key].(string); ok && v != "" {
		return v
	}
	return "unknown"
}
