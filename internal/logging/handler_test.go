// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "api", Version: "1.0.0", Format: FormatJSON, Writer: &buf})

	logger.Info("test message")

	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err, "Failed to parse JSON: %s", buf.String())

	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "worker", Version: "1.0.0", Format: FormatText, Writer: &buf})

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "worker", "Output missing service")
}

func TestSetup_PrettyFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "api", Format: FormatPretty, Writer: &buf})

	logger.Info("pretty message", "listing", "01J")

	output := buf.String()
	assert.Contains(t, output, "pretty message")
	assert.Contains(t, output, "listing")
	assert.NotContains(t, output, `"msg"`, "pretty output is not JSON")
}

func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "api", Level: "warn", Writer: &buf})

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "api", Version: "1.0.0", Writer: &buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	ctx = WithRequestID(ctx, "req-42")

	logger.InfoContext(ctx, "traced message")

	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err, "Failed to parse JSON")

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	assert.Equal(t, "req-42", entry["request_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "api", Version: "1.0.0", Writer: &buf})

	logger.Info("no trace message")

	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err, "Failed to parse JSON")

	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "request_id")
}

func TestSetup_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "api", Writer: &buf})

	logger.Info("test message")

	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err, "Default format should be JSON")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	SetDefault(Options{Service: "test-service", Version: "2.0.0", Writer: &buf})

	assert.NotEqual(t, original, slog.Default(), "SetDefault did not change the default logger")
	slog.Info("via default")
	assert.Contains(t, buf.String(), "test-service")
}

type post struct {
	tag string
	tm  time.Time
	msg map[string]any
}

type recordingPoster struct {
	mu    sync.Mutex
	posts []post
	err   error
}

func (p *recordingPoster) PostWithTime(tag string, tm time.Time, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, _ := message.(map[string]any)
	p.posts = append(p.posts, post{tag: tag, tm: tm, msg: m})
	return p.err
}

func TestSetup_ForwardsRecords(t *testing.T) {
	var buf bytes.Buffer
	fwd := &recordingPoster{}
	logger := Setup(Options{Service: "api", Version: "1.0.0", Writer: &buf, Forward: fwd})

	logger.With("component", "listing").WithGroup("req").Info("served", "status", 200)

	assert.Contains(t, buf.String(), "served", "local handler still writes")
	require.Len(t, fwd.posts, 1)
	p := fwd.posts[0]
	assert.Equal(t, "api", p.tag)
	assert.False(t, p.tm.IsZero())
	assert.Equal(t, "served", p.msg["msg"])
	assert.Equal(t, "INFO", p.msg["level"])
	assert.Equal(t, "listing", p.msg["component"])
	assert.EqualValues(t, 200, p.msg["req.status"])
	assert.Equal(t, "api", p.msg["req.service"])
}

func TestSetup_ForwardRespectsLevel(t *testing.T) {
	fwd := &recordingPoster{}
	logger := Setup(Options{Service: "api", Level: "error", Writer: &bytes.Buffer{}, Forward: fwd})

	logger.Warn("ignored")
	assert.Empty(t, fwd.posts)
}

func TestFanout_ReportsForwardErrors(t *testing.T) {
	var buf bytes.Buffer
	fwd := &recordingPoster{err: errors.New("collector down")}
	h := fanout{slog.NewJSONHandler(&buf, nil), newForwardHandler(fwd, "", slog.LevelInfo)}

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "m", 0))
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"msg":"m"`, "first handler still ran")
	assert.Equal(t, "app", fwd.posts[0].tag)
}

func TestNewFluent_RequiresTagPrefix(t *testing.T) {
	_, err := NewFluent(FluentConfig{Host: "localhost", Port: 24224})
	require.Error(t, err)
}
