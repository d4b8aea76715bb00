// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Query selects a page of properties. Zero-valued fields do not filter.
type Query struct {
	Status   Status
	OwnerID  ulid.ULID
	Location string   // case-insensitive substring
	PriceMin *float64 // inclusive
	PriceMax *float64 // inclusive
	// IncludeDeleted adds soft-deleted rows to the result.
	IncludeDeleted bool
	// Offset and Limit page the result; Limit 0 returns every match.
	Offset int
	Limit  int
}

// Repository persists properties.
//
// Every read takes an explicit includeDeleted flag; there is no default
// visibility filter applied behind the caller's back.
type Repository interface {
	// Get retrieves a property by ID.
	// Returns ErrNotFound if absent, or if soft-deleted and includeDeleted is false.
	Get(ctx context.Context, id ulid.ULID, includeDeleted bool) (*Property, error)

	// Find returns the page of properties matching q, newest first, and the
	// total number of matches ignoring Offset and Limit.
	Find(ctx context.Context, q Query) ([]*Property, int, error)

	// FindByIDs returns the properties among ids that exist. Missing ids are skipped.
	FindByIDs(ctx context.Context, ids []ulid.ULID, includeDeleted bool) ([]*Property, error)

	// Insert persists a new property with Version 1.
	// Returns ErrConflict if the id is already taken.
	Insert(ctx context.Context, p *Property) error

	// UpdateIfVersion writes p if the stored row is live and still at expectedVersion.
	// On success p.Version and p.UpdatedAt are refreshed.
	// Returns ErrConflict on a version mismatch, ErrNotFound if the row is gone or deleted.
	UpdateIfVersion(ctx context.Context, p *Property, expectedVersion int64) error

	// SoftDelete marks the property deleted if it is live and still at expectedVersion.
	// Returns ErrConflict on a version mismatch, ErrNotFound if the row is gone or deleted.
	SoftDelete(ctx context.Context, id ulid.ULID, expectedVersion int64, at time.Time) error
}

// MediaStore holds image bytes behind opaque handles.
type MediaStore interface {
	// Upload stores data and returns its handle.
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	// Delete releases a handle. Deleting an unknown handle is not an error.
	Delete(ctx context.Context, handle string) error
}

// EventPublisher announces committed lifecycle changes.
// Publishing is best-effort; a failure never undoes the change.
type EventPublisher interface {
	Publish(ctx context.Context, ev LifecycleEvent) error
}

// ListCache caches public listing pages.
type ListCache interface {
	// GetPage returns the cached page for key, or nil on a miss. slot pins
	// the cache generation the lookup saw; it is empty when the generation
	// could not be read.
	GetPage(ctx context.Context, key string) (page *Page, slot string, err error)
	// SetPage stores a page in a slot returned by GetPage. A slot from
	// before an Invalidate is never served again.
	SetPage(ctx context.Context, slot string, page *Page) error
	// Invalidate drops every cached page.
	Invalidate(ctx context.Context) error
}
