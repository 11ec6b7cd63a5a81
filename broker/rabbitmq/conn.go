package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/patrimo/patrimo/broker"
	perr "github.com/patrimo/patrimo/contract/errors"
	"github.com/patrimo/patrimo/platform/logger"
)

const exchangeType = "topic"

type Config struct {
	URL      string
	Exchange string

	// ConnTimeout bounds a single dial attempt.
	ConnTimeout time.Duration

	// ReconnectDelay is the fixed pause between failed attempts. The
	// retry never gives up: the service must keep serving unrelated
	// traffic while the broker is down.
	ReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.Exchange == "" {
		c.Exchange = "patrimo.events"
	}

	if c.ConnTimeout <= 0 {
		c.ConnTimeout = 10 * time.Second
	}

	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
}

type subscription struct {
	opts broker.SubscribeOptions
	h    broker.Handler
}

// Conn owns the single AMQP connection for a service and keeps it alive.
// State moves Disconnected → Connecting → Connected and falls back to
// Disconnected on any failure. Subscriptions registered in any state are
// bound once Connected and re-bound after every reconnect.
type Conn struct {
	cfg Config
	log *logger.Logger

	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel // publish channel
	subs []*subscription

	state     atomic.Int32
	closed    chan struct{}
	closeOnce sync.Once
}

var _ broker.Connection = (*Conn)(nil)

// Dial starts the connection manager and returns immediately; the first
// connect attempt happens in the background.
func Dial(cfg Config, log *logger.Logger) (*Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq url required: %w", perr.ErrBrokerUnavailable)
	}

	cfg.defaults()

	if log == nil {
		log = logger.Nop()
	}

	c := &Conn{
		cfg:    cfg,
		log:    log.With("component", "rabbitmq"),
		closed: make(chan struct{}),
	}

	go c.run()

	return c, nil
}

func (c *Conn) State() broker.State { return broker.State(c.state.Load()) }

// Publish hands body to the exchange under routingKey. When the manager
// is not Connected this is an observable no-op: (false, nil). Callers
// treat an undelivered event as acceptable loss, never a request failure.
func (c *Conn) Publish(ctx context.Context, routingKey string, body []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.RLock()
	ch := c.ch
	c.mu.RUnlock()

	if c.State() != broker.Connected || ch == nil {
		return false, nil
	}

	err := ch.PublishWithContext(
		ctx,
		c.cfg.Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
	if err != nil {
		return false, fmt.Errorf("rabbitmq publish %s: %w", routingKey, errors.Join(perr.ErrBrokerUnavailable, err))
	}

	return true, nil
}

// Subscribe registers a durable queue binding. It never fails for broker
// unavailability: the binding is deferred until the connection is up.
func (c *Conn) Subscribe(opts broker.SubscribeOptions, h broker.Handler) error {
	if opts.Queue == "" || len(opts.Patterns) == 0 {
		return fmt.Errorf("subscribe needs a queue and at least one pattern: %w", perr.ErrMalformedEvent)
	}

	sub := &subscription{opts: opts, h: h}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	conn := c.conn
	connected := c.State() == broker.Connected
	c.mu.Unlock()

	if connected && conn != nil {
		if err := c.bind(conn, sub); err != nil {
			// the next reconnect re-binds every subscription
			c.log.Error("bind failed, deferring to reconnect", "queue", opts.Queue, "error", err)
		}
	}

	return nil
}

func (c *Conn) run() {
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		c.state.Store(int32(broker.Connecting))

		conn, ch, err := c.connect()
		if err != nil {
			c.state.Store(int32(broker.Disconnected))
			c.log.Warn("broker unavailable, retrying",
				"delay", c.cfg.ReconnectDelay, "error", err)

			t := time.NewTimer(c.cfg.ReconnectDelay)
			select {
			case <-c.closed:
				t.Stop()
				return
			case <-t.C:
			}

			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.ch = ch
		subs := append([]*subscription(nil), c.subs...)
		c.mu.Unlock()

		c.state.Store(int32(broker.Connected))
		c.log.Info("broker connected", "exchange", c.cfg.Exchange)

		for _, sub := range subs {
			if err := c.bind(conn, sub); err != nil {
				c.log.Error("bind failed", "queue", sub.opts.Queue, "error", err)
			}
		}

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.closed:
			_ = ch.Close()
			_ = conn.Close()

			return
		case amqpErr := <-notify:
			c.state.Store(int32(broker.Disconnected))

			c.mu.Lock()
			c.conn, c.ch = nil, nil
			c.mu.Unlock()

			c.log.Warn("broker connection lost, reconnecting", "error", amqpErr)
		}
	}
}

func (c *Conn) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "patrimo"},
		Dial:       amqp.DefaultDial(c.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	// idempotent: every service declares the same shared durable exchange
	if err := ch.ExchangeDeclare(c.cfg.Exchange, exchangeType, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	return conn, ch, nil
}

// bind declares the subscription's durable queue on its own channel,
// binds every pattern, and starts the delivery loop. The loop ends when
// the connection drops; the reconnect path calls bind again.
func (c *Conn) bind(conn *amqp.Connection, sub *subscription) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	q, err := ch.QueueDeclare(sub.opts.Queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return err
	}

	for _, pattern := range sub.opts.Patterns {
		if err := ch.QueueBind(q.Name, pattern, c.cfg.Exchange, false, nil); err != nil {
			_ = ch.Close()
			return err
		}
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return err
	}

	go c.consume(sub, deliveries)

	return nil
}

func (c *Conn) consume(sub *subscription, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		err := sub.h(context.Background(), broker.Delivery{
			RoutingKey:  d.RoutingKey,
			Body:        d.Body,
			Redelivered: d.Redelivered,
		})

		switch broker.Resolve(sub.opts.OnError, d.Redelivered, err) {
		case broker.OutcomeAck:
			_ = d.Ack(false)
		case broker.OutcomeDrop:
			if err != nil {
				c.log.Warn("dropping message", "queue", sub.opts.Queue, "routing_key", d.RoutingKey, "error", err)
			}

			_ = d.Ack(false)
		case broker.OutcomeRequeue:
			c.log.Warn("requeueing message", "queue", sub.opts.Queue, "routing_key", d.RoutingKey, "error", err)
			_ = d.Nack(false, true)
		}
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	c.state.Store(int32(broker.Disconnected))

	return nil
}
