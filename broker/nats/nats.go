package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/patrimo/patrimo/broker"
	perr "github.com/patrimo/patrimo/contract/errors"
	"github.com/patrimo/patrimo/platform/logger"
)

// Alternate fabric adapter over core NATS subjects. Routing keys map to
// subjects unchanged; binding patterns translate "*" to "*" and a
// trailing "#" to ">". The per-service durable queue maps to a NATS
// queue group, so instances compete for messages. Core NATS gives
// at-most-once delivery; the RequeueOnError policy is honored with one
// local re-invocation since there is no broker-side nack.

type Config struct {
	URL            string
	Name           string
	ConnTimeout    time.Duration
	ReconnectDelay time.Duration
}

type Conn struct {
	nc  *nats.Conn
	log *logger.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

var _ broker.Connection = (*Conn)(nil)

// Dial connects with infinite reconnects; like the RabbitMQ manager, a
// broker outage is transient and never fatal.
func Dial(cfg Config, log *logger.Logger) (*Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required: %w", perr.ErrBrokerUnavailable)
	}

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}

	if log == nil {
		log = logger.Nop()
	}

	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectDelay),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", errors.Join(perr.ErrBrokerUnavailable, err))
	}

	return &Conn{nc: nc, log: log.With("component", "nats")}, nil
}

func (c *Conn) State() broker.State {
	switch c.nc.Status() {
	case nats.CONNECTED:
		return broker.Connected
	case nats.CONNECTING, nats.RECONNECTING:
		return broker.Connecting
	default:
		return broker.Disconnected
	}
}

func (c *Conn) Publish(ctx context.Context, routingKey string, body []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if c.State() != broker.Connected {
		return false, nil
	}

	if err := c.nc.Publish(routingKey, body); err != nil {
		return false, fmt.Errorf("nats publish %s: %w", routingKey, errors.Join(perr.ErrBrokerUnavailable, err))
	}

	return true, nil
}

func (c *Conn) Subscribe(opts broker.SubscribeOptions, h broker.Handler) error {
	if opts.Queue == "" || len(opts.Patterns) == 0 {
		return fmt.Errorf("subscribe needs a queue and at least one pattern: %w", perr.ErrMalformedEvent)
	}

	for _, pattern := range opts.Patterns {
		pattern := pattern

		subject, exact := translate(pattern)

		sub, err := c.nc.QueueSubscribe(subject, opts.Queue, func(msg *nats.Msg) {
			// a "#" in a non-trailing position over-matches as ">";
			// re-check against the original pattern
			if !exact && !broker.Match(pattern, msg.Subject) {
				return
			}

			d := broker.Delivery{RoutingKey: msg.Subject, Body: msg.Data}

			err := h(context.Background(), d)
			if broker.Resolve(opts.OnError, false, err) == broker.OutcomeRequeue {
				d.Redelivered = true
				if rerr := h(context.Background(), d); rerr != nil {
					c.log.Warn("dropping message after redelivery", "subject", msg.Subject, "error", rerr)
				}
			}
		})
		if err != nil {
			return fmt.Errorf("nats subscribe %s: %w", pattern, errors.Join(perr.ErrBrokerUnavailable, err))
		}

		c.mu.Lock()
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
	}

	return nil
}

// translate maps a topic pattern to a NATS subject. The second return is
// false when the subject over-matches and deliveries need re-filtering.
func translate(pattern string) (string, bool) {
	segments := strings.Split(pattern, ".")
	for i, seg := range segments {
		if seg != "#" {
			continue
		}

		if i == len(segments)-1 {
			segments[i] = ">"
			return strings.Join(segments, "."), true
		}

		// "#" mid-pattern has no subject equivalent; subscribe wide
		return strings.Join(append(segments[:i:i], ">"), "."), false
	}

	return pattern, true
}

func (c *Conn) Close() error {
	c.mu.Lock()
	for _, s := range c.subs {
		_ = s.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()

	if !c.nc.IsClosed() {
		_ = c.nc.Drain()
		c.nc.Close()
	}

	return nil
}
