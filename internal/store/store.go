// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package store manages the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig configures Open.
type PoolConfig struct {
	URL      string
	MaxConns int32
	// ConnectAttempts bounds the startup ping retries. Zero means one attempt.
	ConnectAttempts uint64
	// ConnectBackoff is the first retry delay; later delays grow exponentially.
	ConnectBackoff time.Duration
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Open creates a pool and waits until the database answers a ping.
func Open(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := waitReady(ctx, pool, cfg.ConnectAttempts, cfg.ConnectBackoff); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitReady(ctx context.Context, db pinger, attempts uint64, backoff time.Duration) error {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	var retries uint64
	if attempts > 1 {
		retries = attempts - 1
	}
	b := retry.WithMaxRetries(retries, retry.WithCappedDuration(10*time.Second, retry.NewExponential(backoff)))

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return nil
}
