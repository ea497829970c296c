package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EventPublisher broadcasts domain events. Publishing is best effort: the
// calling use case never fails because an event could not be delivered.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload map[string]interface{})
}

type natsPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSPublisher wraps a NATS connection as an EventPublisher. A nil
// connection yields a publisher that drops every event, so event publishing
// can be disabled by configuration.
func NewNATSPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) EventPublisher {
	return &natsPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsPublisher) Publish(_ context.Context, subject string, payload map[string]interface{}) {
	if p.conn == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to encode event payload")
		return
	}

	full := subject
	if p.prefix != "" {
		full = fmt.Sprintf("%s.%s", p.prefix, subject)
	}

	if err := p.conn.Publish(full, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", full).Msg("failed to publish event")
	}
}
