// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package listing implements the property listing lifecycle: the moderation
// state machine, media reconciliation, and the service that orchestrates
// both behind authorization and optimistic concurrency.
package listing

import (
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rentloop/rentloop/internal/access"
)

// MaxImages is the upper bound on images attached to one property.
const MaxImages = 6

// Status is the moderation state of a property.
type Status string

// Property statuses.
const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s names a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPublished, StatusArchived:
		return true
	default:
		return false
	}
}

// Property is a rental listing.
type Property struct {
	ID          ulid.ULID
	Title       string
	Description string
	Location    string
	Price       float64
	Images      []string // media handles; the first is the primary image
	Status      Status
	OwnerID     ulid.ULID
	Version     int64
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsDeleted reports whether the property has been soft-deleted.
func (p *Property) IsDeleted() bool {
	return p.DeletedAt != nil
}

// Clone returns a deep copy so mutations never alias the stored record.
func (p *Property) Clone() *Property {
	c := *p
	c.Images = slices.Clone(p.Images)
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Resource returns the authorization view of the property.
func (p *Property) Resource() access.Resource {
	return access.Resource{
		OwnerID: p.OwnerID,
		Status:  string(p.Status),
		Deleted: p.IsDeleted(),
	}
}

// publishable reports which required field is missing for publication,
// or "" when the property may be published.
func (p *Property) publishable() string {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return "title"
	case strings.TrimSpace(p.Description) == "":
		return "description"
	case strings.TrimSpace(p.Location) == "":
		return "location"
	case p.Price <= 0:
		return "price"
	case len(p.Images) == 0:
		return "images"
	default:
		return ""
	}
}
