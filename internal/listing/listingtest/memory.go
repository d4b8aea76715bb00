// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package listingtest provides in-memory listing dependencies for tests.
package listingtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/rentloop/rentloop/internal/listing"
)

// Repository is an in-memory listing.Repository with the same
// conditional-write semantics as the PostgreSQL implementation.
type Repository struct {
	mu    sync.Mutex
	items map[ulid.ULID]*listing.Property

	// BeforeWrite, when set, runs before every conditional write with the
	// lock released. Tests use it to line up concurrent writers.
	BeforeWrite func(id ulid.ULID)
}

var _ listing.Repository = (*Repository)(nil)

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{items: make(map[ulid.ULID]*listing.Property)}
}

// Put stores p as-is, bypassing version checks. For test setup.
func (r *Repository) Put(p *listing.Property) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	r.items[p.ID] = p.Clone()
}

// Get implements listing.Repository.
func (r *Repository) Get(_ context.Context, id ulid.ULID, includeDeleted bool) (*listing.Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok || (p.IsDeleted() && !includeDeleted) {
		return nil, notFound(id)
	}
	return p.Clone(), nil
}

// Find implements listing.Repository.
func (r *Repository) Find(_ context.Context, q listing.Query) ([]*listing.Property, int, error) {
	r.mu.Lock()
	matches := make([]*listing.Property, 0, len(r.items))
	for _, p := range r.items {
		if matchesQuery(p, q) {
			matches = append(matches, p.Clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID.Compare(matches[j].ID) > 0
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	if q.Offset >= total {
		return []*listing.Property{}, total, nil
	}
	matches = matches[q.Offset:]
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, total, nil
}

// FindByIDs implements listing.Repository.
func (r *Repository) FindByIDs(_ context.Context, ids []ulid.ULID, includeDeleted bool) ([]*listing.Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*listing.Property, 0, len(ids))
	for _, id := range ids {
		p, ok := r.items[id]
		if !ok || (p.IsDeleted() && !includeDeleted) {
			continue
		}
		out = append(out, p.Clone())
	}
	return out, nil
}

// Insert implements listing.Repository.
func (r *Repository) Insert(_ context.Context, p *listing.Property) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[p.ID]; exists {
		return oops.Code(listing.CodeVersionConflict).With("id", p.ID.String()).Wrap(listing.ErrConflict)
	}
	p.Version = 1
	r.items[p.ID] = p.Clone()
	return nil
}

// UpdateIfVersion implements listing.Repository.
func (r *Repository) UpdateIfVersion(_ context.Context, p *listing.Property, expectedVersion int64) error {
	if r.BeforeWrite != nil {
		r.BeforeWrite(p.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkWritable(p.ID, expectedVersion); err != nil {
		return err
	}
	stored := r.items[p.ID]
	p.Version = expectedVersion + 1
	p.CreatedAt = stored.CreatedAt
	p.DeletedAt = nil
	r.items[p.ID] = p.Clone()
	return nil
}

// SoftDelete implements listing.Repository.
func (r *Repository) SoftDelete(_ context.Context, id ulid.ULID, expectedVersion int64, at time.Time) error {
	if r.BeforeWrite != nil {
		r.BeforeWrite(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkWritable(id, expectedVersion); err != nil {
		return err
	}
	stored := r.items[id].Clone()
	stored.DeletedAt = &at
	stored.UpdatedAt = at
	stored.Version = expectedVersion + 1
	r.items[id] = stored
	return nil
}

// checkWritable must be called with mu held.
func (r *Repository) checkWritable(id ulid.ULID, expectedVersion int64) error {
	stored, ok := r.items[id]
	if !ok || stored.IsDeleted() {
		return notFound(id)
	}
	if stored.Version != expectedVersion {
		return oops.Code(listing.CodeVersionConflict).
			With("id", id.String()).
			With("expected_version", expectedVersion).
			With("actual_version", stored.Version).
			Wrap(listing.ErrConflict)
	}
	return nil
}

func matchesQuery(p *listing.Property, q listing.Query) bool {
	if p.IsDeleted() && !q.IncludeDeleted {
		return false
	}
	if q.Status != "" && p.Status != q.Status {
		return false
	}
	if !q.OwnerID.IsZero() && p.OwnerID != q.OwnerID {
		return false
	}
	if q.Location != "" && !strings.Contains(strings.ToLower(p.Location), strings.ToLower(q.Location)) {
		return false
	}
	if q.PriceMin != nil && p.Price < *q.PriceMin {
		return false
	}
	if q.PriceMax != nil && p.Price > *q.PriceMax {
		return false
	}
	return true
}

func notFound(id ulid.ULID) error {
	return oops.Code(listing.CodeNotFound).With("id", id.String()).Wrap(listing.ErrNotFound)
}

// ErrMediaDown is returned by MediaStore when a failure is injected.
var ErrMediaDown = errors.New("media store unavailable")

// MediaStore is an in-memory listing.MediaStore that records every call.
type MediaStore struct {
	mu      sync.Mutex
	next    int
	blobs   map[string][]byte
	uploads []string
	deletes []string

	// FailUploads makes the n-th upload calls fail (0-based call index).
	FailUploads map[int]bool
	// FailAllUploads makes every upload fail.
	FailAllUploads bool
	// FailDeletes makes every delete fail.
	FailDeletes bool

	uploadCalls int
}

var _ listing.MediaStore = (*MediaStore)(nil)

// NewMediaStore creates an empty media store.
func NewMediaStore() *MediaStore {
	return &MediaStore{blobs: make(map[string][]byte)}
}

// Seed stores a blob under handle without recording an upload.
func (m *MediaStore) Seed(handle string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[handle] = data
}

// Upload implements listing.MediaStore.
func (m *MediaStore) Upload(_ context.Context, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.uploadCalls
	m.uploadCalls++
	if m.FailAllUploads || m.FailUploads[call] {
		return "", ErrMediaDown
	}
	m.next++
	handle := fmt.Sprintf("img-%d", m.next)
	m.blobs[handle] = slices.Clone(data)
	m.uploads = append(m.uploads, handle)
	return handle, nil
}

// Delete implements listing.MediaStore.
func (m *MediaStore) Delete(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, handle)
	if m.FailDeletes {
		return ErrMediaDown
	}
	delete(m.blobs, handle)
	return nil
}

// Uploaded returns the handles issued so far, in order.
func (m *MediaStore) Uploaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.uploads)
}

// Deleted returns the handles deletes were requested for, in order.
func (m *MediaStore) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.deletes)
}

// UploadCalls returns the number of upload attempts.
func (m *MediaStore) UploadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadCalls
}

// Has reports whether handle is currently stored.
func (m *MediaStore) Has(handle string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[handle]
	return ok
}
