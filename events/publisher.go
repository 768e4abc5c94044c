package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Publisher delivers an encoded event to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subject binds a NATS subject to its payload type.
type Subject[T any] struct {
	Pattern string
}

// NewSubject returns a typed subject.
func NewSubject[T any](pattern string) Subject[T] {
	return Subject[T]{Pattern: pattern}
}

// Publish encodes payload as JSON and hands it to p.
func (s Subject[T]) Publish(ctx context.Context, p Publisher, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.Pattern, err)
	}
	if err := p.Publish(ctx, s.Pattern, data); err != nil {
		return fmt.Errorf("publish %s: %w", s.Pattern, err)
	}
	return nil
}

// NATSPublisher publishes on a core NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(nc *nats.Conn, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, logger: logger}
}

// Publish sends data on subject. Core NATS publish is fire-and-forget; the
// context only guards against publishing after cancellation.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return err
	}
	p.logger.Debug("Published event", "subject", subject, "bytes", len(data))
	return nil
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, []byte) error { return nil }
