package auth

import (
	"context"
	"fmt"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed     bool
	Reason      Reason
	Requirement string
}

// Err returns nil for allowed decisions and the typed error for denials.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}

	base := ErrInsufficientPrivilege
	switch d.Reason {
	case ReasonUnauthenticated:
		base = ErrUnauthenticated
	case ReasonInactiveAccount:
		base = ErrInactiveAccount
	case ReasonNotOwner:
		base = ErrNotOwner
	case ReasonSelfActionForbidden:
		base = ErrSelfActionForbidden
	case ReasonInsufficientScope:
		base = ErrInsufficientScope
	}

	return withCause(base, nil, map[string]any{"requirement": d.Requirement})
}

func allow(requirement string) Decision {
	return Decision{Allowed: true, Requirement: requirement}
}

func deny(requirement string, reason Reason) Decision {
	return Decision{Reason: reason, Requirement: requirement}
}

// Requirement is a capability an identity must hold. Check only sees active,
// non nil identities, Authorize handles the rest.
type Requirement interface {
	Name() string
	Check(identity Identity) Decision
}

// RequirementFunc adapts a function into a Requirement
type RequirementFunc struct {
	Label string
	Fn    func(identity Identity) Decision
}

func (r RequirementFunc) Name() string { return r.Label }

func (r RequirementFunc) Check(identity Identity) Decision {
	if r.Fn == nil {
		return deny(r.Label, ReasonInsufficientPrivilege)
	}
	return r.Fn(identity)
}

// MustBeActive only needs the identity to be active.
func MustBeActive() Requirement {
	return RequirementFunc{Label: "active", Fn: func(Identity) Decision {
		return allow("active")
	}}
}

func MustBeSuperuser() Requirement {
	return RequirementFunc{Label: "superuser", Fn: func(identity Identity) Decision {
		if identity.IsSuperuser() {
			return allow("superuser")
		}
		return deny("superuser", ReasonInsufficientPrivilege)
	}}
}

// MustOwn passes for the resource owner. Superusers bypass ownership.
func MustOwn(ownerID string) Requirement {
	name := fmt.Sprintf("owner:%s", ownerID)
	return RequirementFunc{Label: name, Fn: func(identity Identity) Decision {
		if ownerID != "" && identity.ID() == ownerID {
			return allow(name)
		}
		if identity.IsSuperuser() {
			return allow(name)
		}
		return deny(name, ReasonNotOwner)
	}}
}

// MustBeSelfOrSuperuser guards actions on another identity's account.
func MustBeSelfOrSuperuser(targetID string) Requirement {
	name := fmt.Sprintf("self_or_superuser:%s", targetID)
	return RequirementFunc{Label: name, Fn: func(identity Identity) Decision {
		if targetID != "" && identity.ID() == targetID {
			return allow(name)
		}
		if identity.IsSuperuser() {
			return allow(name)
		}
		return deny(name, ReasonInsufficientPrivilege)
	}}
}

// MustBeAtLeast checks the role hierarchy. Superusers always pass.
func MustBeAtLeast(role UserRole) Requirement {
	name := fmt.Sprintf("role:%s", role)
	return RequirementFunc{Label: name, Fn: func(identity Identity) Decision {
		if identity.IsSuperuser() || UserRole(identity.Role()).IsAtLeast(role) {
			return allow(name)
		}
		return deny(name, ReasonInsufficientPrivilege)
	}}
}

// SuperuserSelfRemoval is the account deletion policy: superusers cannot
// delete themselves, although they may delete anyone else. Other identities
// may only delete their own account.
func SuperuserSelfRemoval(targetID string) Requirement {
	return superuserSelfAction("self_removal", targetID)
}

// SuperuserSelfDeactivation applies the same rule to deactivation, so a
// superuser cannot lock their own account.
func SuperuserSelfDeactivation(targetID string) Requirement {
	return superuserSelfAction("self_deactivation", targetID)
}

func superuserSelfAction(kind, targetID string) Requirement {
	name := fmt.Sprintf("%s:%s", kind, targetID)
	return RequirementFunc{Label: name, Fn: func(identity Identity) Decision {
		self := targetID != "" && identity.ID() == targetID
		switch {
		case self && identity.IsSuperuser():
			return deny(name, ReasonSelfActionForbidden)
		case self, identity.IsSuperuser():
			return allow(name)
		default:
			return deny(name, ReasonNotOwner)
		}
	}}
}

// Authorize evaluates a single requirement. Missing identities are
// unauthenticated and inactive identities are denied whatever the requirement.
func Authorize(identity Identity, requirement Requirement) Decision {
	if requirement == nil {
		requirement = MustBeActive()
	}

	if isNilIdentity(identity) {
		return deny(requirement.Name(), ReasonUnauthenticated)
	}

	if !identity.IsActive() {
		return deny(requirement.Name(), ReasonInactiveAccount)
	}

	return requirement.Check(identity)
}

// AuthorizeAll returns the first denial, or an allow for the last requirement.
func AuthorizeAll(identity Identity, requirements ...Requirement) Decision {
	if len(requirements) == 0 {
		return Authorize(identity, nil)
	}

	var decision Decision
	for _, req := range requirements {
		decision = Authorize(identity, req)
		if !decision.Allowed {
			return decision
		}
	}
	return decision
}

// Gate wraps AuthorizeAll with logging and activity events.
type Gate struct {
	logger       Logger
	activitySink ActivitySink
}

func NewGate() *Gate {
	return &Gate{
		logger:       defaultLogger(),
		activitySink: noopActivitySink{},
	}
}

func (g *Gate) WithLogger(logger Logger) *Gate {
	g.logger = normalizeLogger(logger)
	return g
}

func (g *Gate) WithActivitySink(sink ActivitySink) *Gate {
	g.activitySink = normalizeActivitySink(sink)
	return g
}

// Check evaluates requirements and records the decision.
func (g *Gate) Check(ctx context.Context, identity Identity, requirements ...Requirement) Decision {
	decision := AuthorizeAll(identity, requirements...)

	event := ActivityEvent{
		EventType:   ActivityEventAuthorizationAllowed,
		Actor:       actorFromIdentity(identity),
		Reason:      decision.Reason,
		Requirement: decision.Requirement,
	}
	if !isNilIdentity(identity) {
		event.UserID = identity.ID()
	}

	if !decision.Allowed {
		event.EventType = ActivityEventAuthorizationDenied
		g.logger.Info("authorization denied", "requirement", decision.Requirement, "reason", decision.Reason, "user_id", event.UserID)
	}

	recordActivity(ctx, g.activitySink, g.logger, event)

	return decision
}

// Require is Check returning the denial as an error.
func (g *Gate) Require(ctx context.Context, identity Identity, requirements ...Requirement) error {
	return g.Check(ctx, identity, requirements...).Err()
}
