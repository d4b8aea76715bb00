// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package httpapi exposes the listing service over JSON/HTTP.
//
// Authentication is a bearer JWT issued by the account service; the router
// trusts its sub and role claims. Authorization stays in the service so the
// transport never decides who may do what.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/rentloop/rentloop/internal/listing"
	"github.com/rentloop/rentloop/internal/observability"
)

// DefaultMaxBodyBytes bounds a property submission: a full gallery plus form fields.
const DefaultMaxBodyBytes = listing.MaxImages*listing.MaxUploadBytes + 1<<20

// Config configures the router.
type Config struct {
	Auth *Authenticator
	// Media serves image bytes; nil disables /api/media.
	Media MediaReader
	// AllowedOrigins lists CORS origins; empty disables CORS headers.
	AllowedOrigins []string
	MaxBodyBytes   int64
	Logger         *slog.Logger
	Metrics        *observability.Metrics
}

// NewRouter builds the API router.
func NewRouter(svc PropertyService, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	h := &handlers{svc: svc, media: cfg.Media, logger: logger, maxBytes: maxBytes}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, requestLogger(logger, cfg.Metrics), middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
			ExposedHeaders:   []string{RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Authenticate)
		}

		r.Get("/properties", h.list)
		r.Get("/properties/{id}", h.get)
		r.Get("/media/{handle}", h.serveMedia)

		r.Group(func(r chi.Router) {
			r.Use(requireActor)

			r.Post("/properties", h.create)
			r.Get("/properties/my", h.listOwn)
			r.Put("/properties/{id}", h.update)
			r.Delete("/properties/{id}", h.softDelete)
			r.Put("/properties/{id}/publish", h.transition(svc.Submit))
			r.Put("/properties/{id}/approve", h.transition(svc.Approve))
			r.Put("/properties/{id}/reject", h.reject)
			r.Put("/properties/{id}/archive", h.transition(svc.ToggleArchive))

			r.Get("/admin/properties", h.adminList)
			r.Post("/favorites/resolve", h.resolveFavorites)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorCode(w, http.StatusNotFound, "not_found", "route not found")
	})
	return r
}

// Server runs the API router.
type Server struct {
	addr       string
	handler    http.Handler
	listener   net.Listener
	httpServer *http.Server
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer creates a server for handler on addr ("host:port").
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Start begins serving. The returned channel receives a serve error, if
// any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
