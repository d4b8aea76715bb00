// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package access provides authorization for property listings.
//
// The policy is a pure function of (actor, action, resource). It never
// performs I/O and its decisions are never cached: callers re-evaluate on
// every operation so a role or ownership change takes effect immediately.
package access

import (
	"github.com/oklog/ulid/v2"
)

// Role identifies the coarse-grained capability set of an actor.
type Role string

// Known roles. An actor without a role is anonymous.
const (
	RoleAnonymous Role = ""
	RoleUser      Role = "user"
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
)

// ParseRole converts a claim value to a Role.
// Returns false for values that name no known role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleUser, RoleOwner, RoleAdmin:
		return r, true
	default:
		return RoleAnonymous, false
	}
}

// Action is an operation an actor attempts on a property.
type Action string

// Property actions.
const (
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionSubmit      Action = "submit"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionArchive     Action = "archive"
	ActionUnarchive   Action = "unarchive"
	ActionDelete      Action = "delete"
	ActionRead        Action = "read"
	ActionReadDeleted Action = "read_deleted"
	ActionListOwn     Action = "list_own"
)

// Actor is the authenticated caller of an operation.
// The zero Actor is anonymous.
type Actor struct {
	ID   ulid.ULID
	Role Role
}

// IsAnonymous reports whether the actor carries no identity.
func (a Actor) IsAnonymous() bool {
	return a.ID.IsZero()
}

// Resource is the authorization-relevant view of a property.
// Status uses the listing status names (draft, pending, published, archived).
type Resource struct {
	OwnerID ulid.ULID
	Status  string
	Deleted bool
}

// statusPublished mirrors the listing status of a publicly visible property.
const statusPublished = "published"

// statusDraft mirrors the listing status of an editable property.
const statusDraft = "draft"
