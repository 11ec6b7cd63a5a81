package inmemory

import (
	"context"
	"sync"

	"github.com/patrimo/patrimo/broker"
)

// Record is one published message, kept for assertions in tests.
type Record struct {
	RoutingKey string
	Body       []byte
}

type subscription struct {
	opts broker.SubscribeOptions
	h    broker.Handler
}

// Broker is a process-local topic exchange implementing broker.Connection.
// Delivery is synchronous and in publish order per binding, mirroring the
// per-binding FIFO guarantee of a real topic exchange. It is always
// Connected; tests can force the disconnected no-op path with SetDown.
type Broker struct {
	mu        sync.Mutex
	subs      []*subscription
	published []Record
	down      bool
	closed    bool
}

var _ broker.Connection = (*Broker)(nil)

func New() *Broker { return &Broker{} }

func (b *Broker) State() broker.State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.down || b.closed {
		return broker.Disconnected
	}

	return broker.Connected
}

// SetDown toggles the simulated broker outage.
func (b *Broker) SetDown(down bool) {
	b.mu.Lock()
	b.down = down
	b.mu.Unlock()
}

func (b *Broker) Publish(ctx context.Context, routingKey string, body []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.Lock()

	if b.down || b.closed {
		b.mu.Unlock()
		return false, nil
	}

	b.published = append(b.published, Record{RoutingKey: routingKey, Body: append([]byte(nil), body...)})
	subs := append([]*subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, sub := range subs {
		if !broker.MatchAny(sub.opts.Patterns, routingKey) {
			continue
		}

		d := broker.Delivery{RoutingKey: routingKey, Body: body}

		err := sub.h(ctx, d)
		if broker.Resolve(sub.opts.OnError, false, err) == broker.OutcomeRequeue {
			// single redelivery, like a broker redelivering an unacked message
			d.Redelivered = true
			_ = sub.h(ctx, d)
		}
	}

	return true, nil
}

func (b *Broker) Subscribe(opts broker.SubscribeOptions, h broker.Handler) error {
	b.mu.Lock()
	b.subs = append(b.subs, &subscription{opts: opts, h: h})
	b.mu.Unlock()

	return nil
}

// Published returns a copy of everything accepted so far.
func (b *Broker) Published() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Record(nil), b.published...)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	return nil
}
