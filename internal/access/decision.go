// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package access

import "fmt"

// Effect represents the evaluated outcome of an access decision.
type Effect int

// Effect constants define the possible outcomes of policy evaluation.
const (
	EffectDefaultDeny Effect = iota // default_deny
	EffectAllow                     // allow
	EffectDeny                      // deny
)

var effectStrings = [...]string{
	"default_deny",
	"allow",
	"deny",
}

func (e Effect) String() string {
	if e >= 0 && int(e) < len(effectStrings) {
		return effectStrings[e]
	}
	return fmt.Sprintf("unknown(%d)", int(e))
}

// Denial reasons. Callers may branch on these to pick an error kind.
const (
	ReasonNoPermission = "role lacks permission"
	ReasonNotOwner     = "actor does not own the property"
	ReasonNotDraft     = "property is not a draft"
	ReasonNotVisible   = "property is not visible to the actor"
	ReasonDeleted      = "property is deleted"
	ReasonAnonymous    = "actor is anonymous"
)

// Decision is the result of evaluating an access request.
// The allowed field is unexported to prevent invariant bypass.
type Decision struct {
	allowed bool
	Effect  Effect
	Reason  string
}

// NewDecision creates a Decision with allowed derived from the effect.
func NewDecision(effect Effect, reason string) Decision {
	return Decision{
		allowed: effect == EffectAllow,
		Effect:  effect,
		Reason:  reason,
	}
}

func allow() Decision { return NewDecision(EffectAllow, "") }

func deny(reason string) Decision { return NewDecision(EffectDeny, reason) }

// IsAllowed returns whether the decision grants access.
func (d Decision) IsAllowed() bool {
	return d.allowed
}

// Validate checks that allowed is consistent with Effect.
func (d Decision) Validate() error {
	expectAllowed := d.Effect == EffectAllow
	if d.allowed != expectAllowed {
		return fmt.Errorf(
			"decision invariant violated: allowed=%v but effect=%s",
			d.allowed, d.Effect,
		)
	}
	return nil
}
