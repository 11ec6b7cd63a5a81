package fabric

import (
	"context"
	"encoding/json"

	"github.com/patrimo/patrimo/broker"
	"github.com/patrimo/patrimo/contract/event"
	"github.com/patrimo/patrimo/platform/logger"
)

// MirrorSink receives a best-effort copy of every accepted publish.
type MirrorSink interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Publisher turns domain facts into envelopes on the event fabric. It is
// fire-and-forget from the caller's perspective: the returned bool only
// reports whether the local hand-off was accepted, and a disconnected
// broker yields (false, nil) rather than an error.
type Publisher struct {
	conn   broker.Connection
	mirror MirrorSink
	log    *logger.Logger
}

func NewPublisher(conn broker.Connection, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}

	return &Publisher{conn: conn, log: log.With("component", "publisher")}
}

// WithMirror attaches a secondary sink (e.g. a Kafka firehose); mirror
// failures are logged, never surfaced.
func (p *Publisher) WithMirror(m MirrorSink) *Publisher {
	p.mirror = m
	return p
}

// Publish builds an Envelope with the current timestamp and hands it to
// the connection with the event type as routing key.
func (p *Publisher) Publish(ctx context.Context, eventType string, data any) (bool, error) {
	env, err := event.New(eventType, data)
	if err != nil {
		return false, err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return false, err
	}

	delivered, err := p.conn.Publish(ctx, eventType, body)
	if err != nil {
		p.log.Error("publish failed", "event_type", eventType, "error", err)
		return false, err
	}

	if !delivered {
		p.log.Warn("event not delivered, broker unavailable", "event_type", eventType, "event_id", env.ID)
		return false, nil
	}

	p.log.Debug("event published", "event_type", eventType, "event_id", env.ID)

	if p.mirror != nil {
		if merr := p.mirror.Publish(ctx, eventType, body); merr != nil {
			p.log.Warn("event mirror failed", "event_type", eventType, "error", merr)
		}
	}

	return true, nil
}
