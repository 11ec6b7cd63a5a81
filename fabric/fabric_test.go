package fabric_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/patrimo/patrimo/broker"
	"github.com/patrimo/patrimo/broker/inmemory"
	perr "github.com/patrimo/patrimo/contract/errors"
	"github.com/patrimo/patrimo/contract/event"
	"github.com/patrimo/patrimo/fabric"
)

type recordingMirror struct {
	keys []string
	err  error
}

func (m *recordingMirror) Publish(ctx context.Context, routingKey string, body []byte) error {
	m.keys = append(m.keys, routingKey)
	return m.err
}

func TestPublishBuildsEnvelope(t *testing.T) {
	b := inmemory.New()
	p := fabric.NewPublisher(b, nil)

	delivered, err := p.Publish(context.Background(), event.TypeUserRegistered,
		event.UserRegistered{UserID: "u1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if !delivered {
		t.Fatal("expected delivery to be accepted")
	}

	recs := b.Published()
	if len(recs) != 1 || recs[0].RoutingKey != event.TypeUserRegistered {
		t.Fatalf("unexpected records: %+v", recs)
	}

	env, err := event.Decode(recs[0].Body)
	if err != nil {
		t.Fatalf("decode published body: %v", err)
	}

	if env.ID == "" || env.Timestamp.IsZero() {
		t.Fatalf("envelope missing id or timestamp: %+v", env)
	}
}

func TestPublishWhileBrokerDownIsNoOp(t *testing.T) {
	b := inmemory.New()
	b.SetDown(true)

	p := fabric.NewPublisher(b, nil)

	delivered, err := p.Publish(context.Background(), event.TypeAssetUpdated, event.AssetChanged{AssetID: "a1"})
	if err != nil {
		t.Fatalf("publish while down must not error: %v", err)
	}

	if delivered {
		t.Fatal("expected the no-op to be observable")
	}
}

func TestPublishRejectsInvalidType(t *testing.T) {
	p := fabric.NewPublisher(inmemory.New(), nil)

	if _, err := p.Publish(context.Background(), "NotValid", nil); !errors.Is(err, perr.ErrInvalidEventType) {
		t.Fatalf("expected invalid event type, got %v", err)
	}
}

func TestPublishMirrorIsBestEffort(t *testing.T) {
	b := inmemory.New()
	m := &recordingMirror{err: errors.New("kafka down")}
	p := fabric.NewPublisher(b, nil).WithMirror(m)

	delivered, err := p.Publish(context.Background(), event.TypeDocumentAdded, event.DocumentChanged{DocumentID: "d1"})
	if err != nil || !delivered {
		t.Fatalf("mirror failure must not fail the publish: delivered=%v err=%v", delivered, err)
	}

	if len(m.keys) != 1 || m.keys[0] != event.TypeDocumentAdded {
		t.Fatalf("mirror saw %v", m.keys)
	}
}

func TestDispatcherRoutesByType(t *testing.T) {
	d := fabric.NewDispatcher(nil)

	var gotAsset event.AssetChanged

	fallbacks := 0

	d.On(event.TypeAssetCashAdded, func(ctx context.Context, e event.Envelope) error {
		p, err := e.Payload()
		if err != nil {
			return err
		}
		gotAsset = p.(event.AssetChanged)
		return nil
	})
	d.Default(func(ctx context.Context, e event.Envelope) error {
		fallbacks++
		return nil
	})

	b := inmemory.New()
	if err := d.Bind(b, "networth", []string{"asset.#", "user.#"}, broker.AckOnError); err != nil {
		t.Fatalf("bind: %v", err)
	}

	p := fabric.NewPublisher(b, nil)

	ctx := context.Background()
	if _, err := p.Publish(ctx, event.TypeAssetCashAdded, event.AssetChanged{AssetID: "a1", Category: "cash", Amount: 50000}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, err := p.Publish(ctx, event.TypeUserLoggedIn, event.UserLoggedIn{UserID: "u1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if gotAsset.Amount != 50000 || gotAsset.Category != "cash" {
		t.Fatalf("typed handler saw %+v", gotAsset)
	}

	if fallbacks != 1 {
		t.Fatalf("fallback invocations: %d", fallbacks)
	}
}

func TestDispatcherDropsMalformedAndKeepsGoing(t *testing.T) {
	d := fabric.NewDispatcher(nil)

	seen := 0
	d.Default(func(ctx context.Context, e event.Envelope) error {
		seen++
		return nil
	})

	err := d.Dispatch(context.Background(), broker.Delivery{RoutingKey: "user.registered", Body: []byte("not json")})
	if !errors.Is(err, perr.ErrMalformedEvent) {
		t.Fatalf("expected malformed event, got %v", err)
	}

	// a valid message after a malformed one is still processed
	env, _ := event.New(event.TypeUserRegistered, event.UserRegistered{UserID: "u1"})
	body, _ := json.Marshal(env)

	if err := d.Dispatch(context.Background(), broker.Delivery{RoutingKey: env.EventType, Body: body}); err != nil {
		t.Fatalf("dispatch valid: %v", err)
	}

	if seen != 1 {
		t.Fatalf("valid message not processed, seen=%d", seen)
	}
}

func TestRedeliveredTwiceIsIdempotentForIdempotentHandlers(t *testing.T) {
	// handler idempotent per business key: applying the same event twice
	// must land in the same end state
	state := map[string]float64{}

	d := fabric.NewDispatcher(nil)
	d.On(event.TypeAssetUpdated, func(ctx context.Context, e event.Envelope) error {
		p, err := e.Payload()
		if err != nil {
			return err
		}
		ac := p.(event.AssetChanged)
		state[ac.AssetID] = ac.Amount
		return nil
	})

	env, _ := event.New(event.TypeAssetUpdated, event.AssetChanged{AssetID: "a1", Amount: 42})
	body, _ := json.Marshal(env)
	del := broker.Delivery{RoutingKey: env.EventType, Body: body}

	_ = d.Dispatch(context.Background(), del)
	del.Redelivered = true
	_ = d.Dispatch(context.Background(), del)

	if len(state) != 1 || state["a1"] != 42 {
		t.Fatalf("idempotence violated: %v", state)
	}
}
