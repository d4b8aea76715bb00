// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package redis caches public listing pages in Redis.
//
// Keys embed a generation counter. Invalidate bumps the counter so every
// previously cached page becomes unreachable at once and ages out by TTL.
package redis

import (
	"context"
	"crypto/md5" //nolint:gosec // key hashing, not security
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/rentloop/rentloop/internal/listing"
)

// Config configures a ListCache.
type Config struct {
	// Prefix namespaces keys. Defaults to "rentloop:list".
	Prefix string
	// TTL bounds how long a page is served. Defaults to one minute.
	TTL time.Duration
}

// cmdable is the subset of *goredis.Client the cache uses.
type cmdable interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Incr(ctx context.Context, key string) *goredis.IntCmd
}

// ListCache implements listing.ListCache.
type ListCache struct {
	rdb    cmdable
	prefix string
	ttl    time.Duration
}

var _ listing.ListCache = (*ListCache)(nil)

// NewClient creates a Redis client from a redis:// or rediss:// URL.
func NewClient(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("CACHE_CONFIG_INVALID").Wrap(err)
	}
	return goredis.NewClient(opts), nil
}

// New creates a ListCache over rdb.
func New(rdb cmdable, cfg Config) *ListCache {
	c := &ListCache{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL}
	if c.prefix == "" {
		c.prefix = "rentloop:list"
	}
	if c.ttl <= 0 {
		c.ttl = time.Minute
	}
	return c
}

// GetPage implements listing.ListCache. The returned slot is the
// generation-qualified page key, so a store after an Invalidate lands in a
// generation no reader asks for.
func (c *ListCache) GetPage(ctx context.Context, key string) (*listing.Page, string, error) {
	slot, err := c.pageKey(ctx, key)
	if err != nil {
		return nil, "", err
	}
	data, err := c.rdb.Get(ctx, slot).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, slot, nil
	}
	if err != nil {
		return nil, slot, oops.Code("CACHE_READ_FAILED").With("key", slot).Wrap(err)
	}
	var page listing.Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, slot, oops.Code("CACHE_DECODE_FAILED").With("key", slot).Wrap(err)
	}
	return &page, slot, nil
}

// SetPage implements listing.ListCache.
func (c *ListCache) SetPage(ctx context.Context, slot string, page *listing.Page) error {
	if !strings.HasPrefix(slot, c.prefix+":") {
		return oops.Code("CACHE_SLOT_INVALID").With("key", slot).Errorf("slot not issued by this cache")
	}
	data, err := json.Marshal(page)
	if err != nil {
		return oops.With("key", slot).Wrap(err)
	}
	if err := c.rdb.Set(ctx, slot, data, c.ttl).Err(); err != nil {
		return oops.Code("CACHE_WRITE_FAILED").With("key", slot).Wrap(err)
	}
	return nil
}

// Invalidate implements listing.ListCache.
func (c *ListCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, c.generationKey()).Err(); err != nil {
		return oops.Code("CACHE_WRITE_FAILED").With("key", c.generationKey()).Wrap(err)
	}
	return nil
}

func (c *ListCache) generationKey() string {
	return c.prefix + ":gen"
}

func (c *ListCache) pageKey(ctx context.Context, key string) (string, error) {
	gen, err := c.rdb.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, goredis.Nil) {
		gen = 0
	} else if err != nil {
		return "", oops.Code("CACHE_READ_FAILED").With("key", c.generationKey()).Wrap(err)
	}
	sum := md5.Sum([]byte(key)) //nolint:gosec // key hashing, not security
	return c.prefix + ":" + strconv.FormatInt(gen, 10) + ":" + hex.EncodeToString(sum[:]), nil
}
