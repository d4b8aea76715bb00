// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names a committed property change.
type EventType string

// Lifecycle event types.
const (
	EventTypeCreated    EventType = "property.created"
	EventTypeUpdated    EventType = "property.updated"
	EventTypeSubmitted  EventType = "property.submitted"
	EventTypeApproved   EventType = "property.approved"
	EventTypeRejected   EventType = "property.rejected"
	EventTypeArchived   EventType = "property.archived"
	EventTypeUnarchived EventType = "property.unarchived"
	EventTypeDeleted    EventType = "property.deleted"
)

var eventTypes = map[Event]EventType{
	EventSubmit:    EventTypeSubmitted,
	EventApprove:   EventTypeApproved,
	EventReject:    EventTypeRejected,
	EventArchive:   EventTypeArchived,
	EventUnarchive: EventTypeUnarchived,
}

// LifecycleEvent describes a change after it was committed.
type LifecycleEvent struct {
	ID         ulid.ULID `json:"id"`
	Type       EventType `json:"type"`
	PropertyID ulid.ULID `json:"property_id"`
	OwnerID    ulid.ULID `json:"owner_id"`
	ActorID    ulid.ULID `json:"actor_id"`
	Status     Status    `json:"status"`
	Version    int64     `json:"version"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newLifecycleEvent(t EventType, p *Property, actorID ulid.ULID, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		ID:         ulid.Make(),
		Type:       t,
		PropertyID: p.ID,
		OwnerID:    p.OwnerID,
		ActorID:    actorID,
		Status:     p.Status,
		Version:    p.Version,
		OccurredAt: at,
	}
}
