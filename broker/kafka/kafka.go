package kafka

import (
	"context"
	"errors"
	"fmt"

	perr "github.com/patrimo/patrimo/contract/errors"
)

// Publish-only mirror of the event fabric. Every event accepted by the
// primary broker can additionally be written to a Kafka topic for
// analytics and replay; Kafka's consumer model has no wildcard topic
// binding, so it never serves the subscribe side.

// Writer is a minimal Kafka-like writer interface. Adapt any concrete
// client to this.
type Writer interface {
	Write(topic string, key, value []byte, headers map[string]string) error
}

// Mirror fans published event bodies to a single firehose topic, keyed
// by routing key so per-key ordering survives partitioning.
type Mirror struct {
	Writer Writer
	Topic  string
}

func NewMirror(w Writer, topic string) *Mirror {
	if topic == "" {
		topic = "patrimo.events"
	}

	return &Mirror{Writer: w, Topic: topic}
}

// Publish writes the raw envelope to the firehose topic. Mirroring is
// best-effort: callers log failures but never fail the original publish.
func (m *Mirror) Publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.Writer == nil {
		return fmt.Errorf("kafka mirror: %w", perr.ErrBrokerUnavailable)
	}

	headers := map[string]string{"routing-key": routingKey}

	if err := m.Writer.Write(m.Topic, []byte(routingKey), body, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka mirror write: %w", errors.Join(perr.ErrBrokerUnavailable, err))
	}

	return nil
}
