// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/rentloop/rentloop/internal/config"
	"github.com/rentloop/rentloop/internal/events/rabbitmq"
	"github.com/rentloop/rentloop/internal/httpapi"
	"github.com/rentloop/rentloop/internal/listing"
	"github.com/rentloop/rentloop/internal/logging"
	"github.com/rentloop/rentloop/internal/observability"
	"github.com/rentloop/rentloop/internal/store"
)

const serviceName = "rentloop"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the listing API server",
		Long: `Start the HTTP API. PostgreSQL, MongoDB and a JWT secret are required;
RabbitMQ event publishing and the Redis list cache are enabled when their
URLs are configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cmd, cfg, nil)
		},
	}
}

// runServeWithDeps wires every component and blocks until ctx is cancelled
// or a server fails.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if err := cfg.RequireServe(); err != nil {
		return err
	}

	logOpts := logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	}
	if cfg.Log.Fluent.Enabled {
		fwd, err := deps.LogForwarderFactory(logging.FluentConfig{
			Host:      cfg.Log.Fluent.Host,
			Port:      cfg.Log.Fluent.Port,
			TagPrefix: cfg.Log.Fluent.TagPrefix,
		})
		if err != nil {
			return err
		}
		defer closeQuietly(fwd, "log forwarder")
		logOpts.Forward = fwd
	}
	logger := logging.SetDefault(logOpts)

	repo, closeRepo, err := deps.RepositoryFactory(ctx, store.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		ConnectBackoff:  cfg.Database.ConnectBackoff,
	})
	if err != nil {
		return oops.With("operation", "open database").Wrap(err)
	}
	defer closeRepo()
	logger.Info("database connected")

	mediaStore, closeMedia, err := deps.MediaFactory(ctx, cfg.Media, logger)
	if err != nil {
		return oops.With("operation", "open media store").Wrap(err)
	}
	defer closeMedia()
	logger.Info("media store connected", "bucket", cfg.Media.Bucket)

	var events listing.EventPublisher
	if cfg.Events.URL != "" {
		pub, err := deps.PublisherFactory(rabbitmq.Config{
			URL:      cfg.Events.URL,
			Exchange: cfg.Events.Exchange,
			Logger:   logger,
		})
		if err != nil {
			logger.Warn("event publishing disabled", "error", err)
		} else {
			defer closeQuietly(pub, "event publisher")
			events = pub
		}
	}

	var cache listing.ListCache
	if cfg.Cache.URL != "" {
		c, closeCache, err := deps.CacheFactory(ctx, cfg.Cache)
		if err != nil {
			logger.Warn("list cache disabled", "error", err)
		} else {
			defer closeCache()
			cache = c
		}
	}

	auth, err := httpapi.NewAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	svc := listing.NewService(listing.ServiceConfig{
		Repo:   repo,
		Media:  mediaStore,
		Events: events,
		Cache:  cache,
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	failures := make(chan error, 2)

	var ready atomic.Bool
	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVER_START_FAILED").With("server", "observability").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", failures)
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	router := httpapi.NewRouter(svc, httpapi.Config{
		Auth:           auth,
		Media:          mediaStore,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		Logger:         logger,
		Metrics:        metrics,
	})
	api := deps.APIServerFactory(cfg.HTTP.Addr, router, logger)
	apiErrChan, err := api.Start()
	if err != nil {
		stopServer(obsServer, "observability", cfg.HTTP.ShutdownTimeout)
		return oops.Code("SERVER_START_FAILED").With("server", "api").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api", failures)
	ready.Store(true)

	cmd.Printf("rentloop listening on %s\n", api.Addr())
	logger.Info("rentloop ready", "addr", api.Addr(), "version", version)

	<-ctx.Done()
	ready.Store(false)
	logger.Info("shutting down...")

	stopServer(api, "api", cfg.HTTP.ShutdownTimeout)
	stopServer(obsServer, "observability", cfg.HTTP.ShutdownTimeout)
	logger.Info("shutdown complete")

	select {
	case err := <-failures:
		return oops.Code("SERVER_FAILED").Wrap(err)
	default:
		return nil
	}
}

type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServer(s stoppable, name string, timeout time.Duration) {
	if s == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, failures chan<- error) {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return
		}
		slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
		select {
		case failures <- oops.With("server", serverName).Wrap(err):
		default:
		}
		cancel()
	case <-ctx.Done():
	}
}

func closeQuietly(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		slog.Warn("error closing "+name, "error", err)
	}
}
