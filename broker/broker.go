package broker

import (
	"context"
	"errors"

	perr "github.com/patrimo/patrimo/contract/errors"
)

// State is the connection manager's lifecycle state. The initial state is
// Disconnected; a failed connect schedules a retry and stays Disconnected.
// Connection loss is never fatal: the service keeps serving unrelated
// traffic while the broker is away.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Delivery is one message handed to a subscription handler.
type Delivery struct {
	RoutingKey  string
	Body        []byte
	Redelivered bool
}

// Handler processes one delivery. Returning nil acknowledges the message.
// An error wrapping errors.ErrMalformedEvent always acknowledges and drops
// (parse errors are permanent; retrying would loop forever). Any other
// error is resolved by the subscription's AckPolicy.
type Handler func(ctx context.Context, d Delivery) error

// AckPolicy decides what happens when a handler fails on a well-formed
// message. The historical behavior is to acknowledge regardless, which
// silently loses events; it stays the default, but the policy is explicit
// data so callers can opt into a bounded requeue.
type AckPolicy int

const (
	// AckOnError acknowledges failed deliveries.
	AckOnError AckPolicy = iota

	// RequeueOnError negatively acknowledges a failed first delivery so
	// the broker redelivers it once; a redelivered message that fails
	// again is acknowledged and dropped.
	RequeueOnError
)

// SubscribeOptions names the durable per-service queue and the wildcard
// patterns bound to it. Multiple instances of one service share the queue
// and compete for messages.
type SubscribeOptions struct {
	Queue    string
	Patterns []string
	OnError  AckPolicy
}

// Connection is one logical, self-healing link to a topic-routed broker.
//
// Publish hands the body to the broker with the given routing key. When
// the connection is not in the Connected state it is a no-op: it returns
// (false, nil), never an error, so business logic proceeds without event
// delivery. Subscribe may be called in any state; bindings registered
// before the first successful connect are deferred and applied once the
// connection is up, and re-applied after every reconnect.
type Connection interface {
	Publish(ctx context.Context, routingKey string, body []byte) (bool, error)
	Subscribe(opts SubscribeOptions, h Handler) error
	State() State
	Close() error
}

// Outcome is the terminal disposition of one delivery.
type Outcome int

const (
	OutcomeAck Outcome = iota
	OutcomeDrop
	OutcomeRequeue
)

// Resolve maps a handler result to a delivery outcome under a policy.
// Shared by adapters so the ack semantics cannot drift between them.
func Resolve(policy AckPolicy, redelivered bool, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAck
	case errors.Is(err, perr.ErrMalformedEvent):
		return OutcomeDrop
	case policy == RequeueOnError && !redelivered:
		return OutcomeRequeue
	default:
		return OutcomeDrop
	}
}
