// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import (
	"github.com/samber/oops"

	"github.com/rentloop/rentloop/internal/access"
)

// Event is a named status transition.
type Event string

// Lifecycle events.
const (
	EventSubmit    Event = "submit"
	EventApprove   Event = "approve"
	EventReject    Event = "reject"
	EventArchive   Event = "archive"
	EventUnarchive Event = "unarchive"
)

// transition is one row of the lifecycle table.
type transition struct {
	from   Status
	to     Status
	action access.Action
	// precondition returns a validation error when the property may not move.
	precondition func(*Property) error
}

// transitions is the single source of truth for status changes.
// Soft deletion is not a status change and is handled separately.
var transitions = map[Event]transition{
	EventSubmit:    {from: StatusDraft, to: StatusPending, action: access.ActionSubmit, precondition: requirePublishable},
	EventApprove:   {from: StatusPending, to: StatusPublished, action: access.ActionApprove},
	EventReject:    {from: StatusPending, to: StatusDraft, action: access.ActionReject},
	EventArchive:   {from: StatusPublished, to: StatusArchived, action: access.ActionArchive},
	EventUnarchive: {from: StatusArchived, to: StatusPublished, action: access.ActionUnarchive},
}

// CanTransition reports whether ev is defined from status.
func CanTransition(status Status, ev Event) bool {
	t, ok := transitions[ev]
	return ok && t.from == status
}

// Transition returns a copy of p moved by ev. The input is never modified.
// Returns ErrInvalidTransition when ev is undefined from p's status and a
// validation error when the event's precondition fails.
func Transition(p *Property, ev Event) (*Property, error) {
	t, ok := transitions[ev]
	if !ok || t.from != p.Status {
		return nil, oops.Code(CodeInvalidTransition).
			With("property_id", p.ID.String()).
			With("status", string(p.Status)).
			With("event", string(ev)).
			Wrap(ErrInvalidTransition)
	}
	if t.precondition != nil {
		if err := t.precondition(p); err != nil {
			return nil, oops.Code(CodeValidationFailed).
				With("property_id", p.ID.String()).
				With("event", string(ev)).
				Wrap(err)
		}
	}
	next := p.Clone()
	next.Status = t.to
	return next, nil
}

// eventAction returns the access action guarding ev.
func eventAction(ev Event) access.Action {
	return transitions[ev].action
}

// requirePublishable enforces the fields a listing needs before moderation.
func requirePublishable(p *Property) error {
	if field := p.publishable(); field != "" {
		return &ValidationError{Field: field, Message: "is required before submission"}
	}
	if len(p.Images) > MaxImages {
		return &ValidationError{Field: "images", Message: "exceeds maximum count"}
	}
	return nil
}
