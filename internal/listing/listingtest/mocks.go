// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listingtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rentloop/rentloop/internal/listing"
)

// MockEventPublisher is a testify mock of listing.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

var _ listing.EventPublisher = (*MockEventPublisher)(nil)

// Publish implements listing.EventPublisher.
func (m *MockEventPublisher) Publish(ctx context.Context, ev listing.LifecycleEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockListCache is a testify mock of listing.ListCache.
type MockListCache struct {
	mock.Mock
}

var _ listing.ListCache = (*MockListCache)(nil)

// GetPage implements listing.ListCache.
func (m *MockListCache) GetPage(ctx context.Context, key string) (*listing.Page, string, error) {
	args := m.Called(ctx, key)
	var page *listing.Page
	if v := args.Get(0); v != nil {
		page = v.(*listing.Page)
	}
	return page, args.String(1), args.Error(2)
}

// SetPage implements listing.ListCache.
func (m *MockListCache) SetPage(ctx context.Context, slot string, page *listing.Page) error {
	args := m.Called(ctx, slot, page)
	return args.Error(0)
}

// Invalidate implements listing.ListCache.
func (m *MockListCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
