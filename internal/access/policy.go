// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package access

import (
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/rentloop/rentloop/internal/observability"
)

// Policy decides whether an actor may perform an action on a property.
// A role grant is necessary but not sufficient: ownership, status and
// deletion conditions are applied per action after the role check.
//
// Thread-safety: roles is immutable after construction.
type Policy struct {
	roles map[Role][]compiledPermission
}

// compiledPermission holds a permission pattern and its compiled glob.
type compiledPermission struct {
	pattern string
	glob    glob.Glob
}

// NewPolicy creates a policy with the default roles.
//
// Panics if default roles contain invalid permission patterns (configuration bug).
func NewPolicy() *Policy {
	p, err := NewPolicyWithRoles(DefaultRoles())
	if err != nil {
		panic("invalid permission pattern in DefaultRoles: " + err.Error())
	}
	return p
}

// NewPolicyWithRoles creates a policy with custom roles.
// Returns error if any permission pattern fails to compile.
func NewPolicyWithRoles(roles map[Role][]string) (*Policy, error) {
	compiledRoles := make(map[Role][]compiledPermission, len(roles))
	for role, perms := range roles {
		compiled := make([]compiledPermission, 0, len(perms))
		for _, p := range perms {
			g, err := glob.Compile(p, ':')
			if err != nil {
				return nil, oops.In("access").
					Code("INVALID_PERMISSION_PATTERN").
					With("role", string(role)).
					With("pattern", p).
					Wrap(err)
			}
			compiled = append(compiled, compiledPermission{pattern: p, glob: g})
		}
		compiledRoles[role] = compiled
	}
	return &Policy{roles: compiledRoles}, nil
}

// Allow evaluates the request and records the outcome in metrics.
func (p *Policy) Allow(actor Actor, action Action, res Resource) Decision {
	d := p.evaluate(actor, action, res)
	observability.RecordAccessDecision(string(action), d.Effect.String())
	return d
}

func (p *Policy) evaluate(actor Actor, action Action, res Resource) Decision {
	if !p.granted(actor.Role, action) {
		if actor.IsAnonymous() && action != ActionRead {
			return NewDecision(EffectDefaultDeny, ReasonAnonymous)
		}
		return NewDecision(EffectDefaultDeny, ReasonNoPermission)
	}

	owns := !actor.IsAnonymous() && actor.ID == res.OwnerID

	switch action {
	case ActionCreate, ActionListOwn, ActionApprove, ActionReject, ActionArchive, ActionUnarchive, ActionReadDeleted:
		return allow()
	case ActionUpdate:
		if !owns {
			return deny(ReasonNotOwner)
		}
		if res.Status != statusDraft {
			return deny(ReasonNotDraft)
		}
		return allow()
	case ActionSubmit:
		if !owns {
			return deny(ReasonNotOwner)
		}
		return allow()
	case ActionDelete:
		if actor.Role == RoleAdmin || owns {
			return allow()
		}
		return deny(ReasonNotOwner)
	case ActionRead:
		if res.Deleted {
			return deny(ReasonDeleted)
		}
		if res.Status == statusPublished || actor.Role == RoleAdmin || owns {
			return allow()
		}
		return deny(ReasonNotVisible)
	default:
		return NewDecision(EffectDefaultDeny, ReasonNoPermission)
	}
}

// granted reports whether any of the role's patterns match the action.
func (p *Policy) granted(role Role, action Action) bool {
	requested := "property:" + string(action)
	for _, perm := range p.roles[role] {
		if perm.glob.Match(requested) {
			return true
		}
	}
	return false
}
