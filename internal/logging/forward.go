// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package logging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/samber/oops"
)

// Poster is the subset of *fluent.Fluent used for log forwarding.
type Poster interface {
	PostWithTime(tag string, tm time.Time, message any) error
}

// FluentConfig configures NewFluent.
type FluentConfig struct {
	Host      string
	Port      int
	TagPrefix string
}

// NewFluent creates an asynchronous Fluent Bit client. The connection is
// established lazily, so an unreachable collector does not block startup.
func NewFluent(cfg FluentConfig) (*fluent.Fluent, error) {
	if cfg.TagPrefix == "" {
		return nil, oops.Code("INVALID_LOG_FORWARD").Errorf("fluent tag prefix is required")
	}
	f, err := fluent.New(fluent.Config{
		FluentHost: cfg.Host,
		FluentPort: cfg.Port,
		TagPrefix:  cfg.TagPrefix,
		Async:      true,
	})
	if err != nil {
		return nil, oops.Code("INVALID_LOG_FORWARD").Wrap(err)
	}
	return f, nil
}

// forwardHandler flattens records into maps and posts them under the
// service tag. Group names become dotted key prefixes.
type forwardHandler struct {
	poster Poster
	tag    string
	level  slog.Leveler
	attrs  map[string]any
	group  string
}

func newForwardHandler(p Poster, tag string, level slog.Leveler) *forwardHandler {
	if tag == "" {
		tag = "app"
	}
	return &forwardHandler{poster: p, tag: tag, level: level, attrs: map[string]any{}}
}

func (h *forwardHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *forwardHandler) Handle(_ context.Context, r slog.Record) error {
	msg := make(map[string]any, len(h.attrs)+r.NumAttrs()+2)
	for k, v := range h.attrs {
		msg[k] = v
	}
	msg["level"] = r.Level.String()
	msg["msg"] = r.Message
	r.Attrs(func(a slog.Attr) bool {
		addAttr(msg, h.group, a)
		return true
	})
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.poster.PostWithTime(h.tag, r.Time, msg)
}

func (h *forwardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		addAttr(next.attrs, h.group, a)
	}
	return next
}

func (h *forwardHandler) WithGroup(name string) slog.Handler {
	next := h.clone()
	next.group = joinKey(h.group, name)
	return next
}

func (h *forwardHandler) clone() *forwardHandler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &forwardHandler{poster: h.poster, tag: h.tag, level: h.level, attrs: attrs, group: h.group}
}

func addAttr(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			addAttr(dst, joinKey(prefix, a.Key), ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[joinKey(prefix, a.Key)] = v.Any()
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return strings.Join([]string{prefix, key}, ".")
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
