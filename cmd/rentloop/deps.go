// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rentloop/rentloop/internal/cache/redis"
	"github.com/rentloop/rentloop/internal/config"
	"github.com/rentloop/rentloop/internal/events/rabbitmq"
	"github.com/rentloop/rentloop/internal/httpapi"
	"github.com/rentloop/rentloop/internal/listing"
	"github.com/rentloop/rentloop/internal/listing/postgres"
	"github.com/rentloop/rentloop/internal/logging"
	"github.com/rentloop/rentloop/internal/media"
	"github.com/rentloop/rentloop/internal/observability"
	"github.com/rentloop/rentloop/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// RepositoryFactory opens the property repository.
	// Default: store.Open + postgres.NewPropertyRepository
	RepositoryFactory func(ctx context.Context, cfg store.PoolConfig) (listing.Repository, func(), error)

	// MediaFactory opens the image store.
	// Default: media.Connect + media.NewStore
	MediaFactory func(ctx context.Context, cfg config.MediaConfig, logger *slog.Logger) (MediaBackend, func(), error)

	// PublisherFactory connects the lifecycle event publisher.
	// Default: rabbitmq.Dial
	PublisherFactory func(cfg rabbitmq.Config) (EventPublisher, error)

	// CacheFactory connects the public list cache.
	// Default: redis.NewClient + redis.New
	CacheFactory func(ctx context.Context, cfg config.CacheConfig) (listing.ListCache, func(), error)

	// LogForwarderFactory creates the Fluent Bit log forwarder.
	// Default: logging.NewFluent
	LogForwarderFactory func(cfg logging.FluentConfig) (LogForwarder, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, handler http.Handler, logger *slog.Logger) APIServer
}

// MediaBackend is what serve needs from media.Store.
type MediaBackend interface {
	listing.MediaStore
	httpapi.MediaReader
}

// EventPublisher wraps the methods used from rabbitmq.Publisher.
type EventPublisher interface {
	listing.EventPublisher
	Close() error
}

// LogForwarder wraps the methods used from fluent.Fluent.
type LogForwarder interface {
	logging.Poster
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer interface wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.RepositoryFactory == nil {
		out.RepositoryFactory = openRepository
	}
	if out.MediaFactory == nil {
		out.MediaFactory = openMedia
	}
	if out.PublisherFactory == nil {
		out.PublisherFactory = func(cfg rabbitmq.Config) (EventPublisher, error) {
			return rabbitmq.Dial(cfg)
		}
	}
	if out.CacheFactory == nil {
		out.CacheFactory = openCache
	}
	if out.LogForwarderFactory == nil {
		out.LogForwarderFactory = func(cfg logging.FluentConfig) (LogForwarder, error) {
			return logging.NewFluent(cfg)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) APIServer {
			return httpapi.NewServer(addr, handler, logger)
		}
	}
	return &out
}

func openRepository(ctx context.Context, cfg store.PoolConfig) (listing.Repository, func(), error) {
	pool, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewPropertyRepository(pool), pool.Close, nil
}

func openMedia(ctx context.Context, cfg config.MediaConfig, logger *slog.Logger) (MediaBackend, func(), error) {
	client, err := media.Connect(ctx, cfg.URI, cfg.ConnectTimeout)
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("error disconnecting media store", "error", err)
		}
	}
	s, err := media.NewStore(client.Database(cfg.Database), media.Config{
		Bucket:   cfg.Bucket,
		Attempts: cfg.DeleteAttempts,
		Logger:   logger,
	})
	if err != nil {
		disconnect()
		return nil, nil, err
	}
	return s, disconnect, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig) (listing.ListCache, func(), error) {
	rdb, err := redis.NewClient(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	closeFn := func() { _ = rdb.Close() }
	return redis.New(rdb, redis.Config{Prefix: cfg.Prefix, TTL: cfg.TTL}), closeFn, nil
}
