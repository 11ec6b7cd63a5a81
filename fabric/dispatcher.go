package fabric

import (
	"context"
	"sync"

	"github.com/patrimo/patrimo/broker"
	"github.com/patrimo/patrimo/contract/event"
	"github.com/patrimo/patrimo/platform/logger"
)

// HandlerFunc reacts to one decoded envelope.
type HandlerFunc func(ctx context.Context, e event.Envelope) error

// Dispatcher is the consumer side of the fabric for one service: it owns
// the handler table keyed by exact event type, decodes raw deliveries,
// and routes them. Types without a handler fall through to the default
// handler, which out of the box just logs the event.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	fallback HandlerFunc
	log      *logger.Logger
}

func NewDispatcher(log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}

	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		log:      log.With("component", "dispatcher"),
	}
	d.fallback = func(ctx context.Context, e event.Envelope) error {
		d.log.Info("event received", "event_type", e.EventType, "event_id", e.ID)
		return nil
	}

	return d
}

// On registers a handler for an exact event type, replacing any previous
// one for that type.
func (d *Dispatcher) On(eventType string, h HandlerFunc) *Dispatcher {
	d.mu.Lock()
	d.handlers[eventType] = h
	d.mu.Unlock()

	return d
}

// Default replaces the fallback handler.
func (d *Dispatcher) Default(h HandlerFunc) *Dispatcher {
	d.mu.Lock()
	d.fallback = h
	d.mu.Unlock()

	return d
}

// Dispatch implements broker.Handler. A body that fails to parse returns
// ErrMalformedEvent so the adapter acks and drops it; handler errors
// propagate for the subscription's AckPolicy to resolve.
func (d *Dispatcher) Dispatch(ctx context.Context, del broker.Delivery) error {
	env, err := event.Decode(del.Body)
	if err != nil {
		d.log.Warn("malformed event dropped", "routing_key", del.RoutingKey, "error", err)
		return err
	}

	d.mu.RLock()
	h, ok := d.handlers[env.EventType]
	if !ok {
		h = d.fallback
	}
	d.mu.RUnlock()

	return h(ctx, env)
}

// Bind declares the service's durable queue over the given patterns and
// wires this dispatcher as its handler. Safe to call before the broker
// connection is up; the binding is deferred by the connection manager.
func (d *Dispatcher) Bind(conn broker.Connection, service string, patterns []string, policy broker.AckPolicy) error {
	return conn.Subscribe(broker.SubscribeOptions{
		Queue:    service,
		Patterns: patterns,
		OnError:  policy,
	}, d.Dispatch)
}
