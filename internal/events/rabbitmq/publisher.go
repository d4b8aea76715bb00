// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package rabbitmq publishes property lifecycle events to a RabbitMQ topic
// exchange. The routing key is the event type, e.g. "property.approved".
package rabbitmq

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"

	"github.com/rentloop/rentloop/internal/listing"
)

// DefaultExchange is the exchange used when Config.Exchange is empty.
const DefaultExchange = "rentloop.properties"

// Config configures a Publisher.
type Config struct {
	URL      string
	Exchange string
	// Timeout bounds each publish. Defaults to 5s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// channel is the subset of *amqp.Channel the Publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements listing.EventPublisher.
type Publisher struct {
	mu       sync.Mutex
	ch       channel
	conn     io.Closer
	exchange string
	timeout  time.Duration
	logger   *slog.Logger
}

var _ listing.EventPublisher = (*Publisher)(nil)

// Dial connects to the broker and declares the durable topic exchange.
func Dial(cfg Config) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, oops.Code("EVENTS_CONNECT_FAILED").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("EVENTS_CONNECT_FAILED").With("operation", "open channel").Wrap(err)
	}
	p, err := newPublisher(ch, conn, cfg)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(ch channel, conn io.Closer, cfg Config) (*Publisher, error) {
	p := &Publisher{
		ch:       ch,
		conn:     conn,
		exchange: cfg.Exchange,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
	if p.exchange == "" {
		p.exchange = DefaultExchange
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, oops.Code("EVENTS_DECLARE_FAILED").With("exchange", p.exchange).Wrap(err)
	}
	return p, nil
}

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev listing.LifecycleEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return oops.With("event", string(ev.Type)).Wrap(err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID.String(),
		Type:         string(ev.Type),
		Timestamp:    ev.OccurredAt,
		Body:         body,
		Headers:      amqp.Table{},
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Headers["x-trace-id"] = sc.TraceID().String()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return oops.Code("EVENTS_CLOSED").Errorf("publisher is closed")
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg); err != nil {
		return oops.Code("EVENTS_PUBLISH_FAILED").
			With("exchange", p.exchange).
			With("event", string(ev.Type)).
			With("property_id", ev.PropertyID.String()).
			Wrap(err)
	}
	p.logger.DebugContext(ctx, "lifecycle event published",
		"event", string(ev.Type), "property_id", ev.PropertyID.String())
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	if p.ch != nil {
		firstErr = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.conn = nil
	}
	if firstErr != nil {
		return oops.Code("EVENTS_CLOSE_FAILED").Wrap(firstErr)
	}
	return nil
}
