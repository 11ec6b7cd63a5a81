package broker_test

import (
	"errors"
	"testing"

	"github.com/patrimo/patrimo/broker"
	perr "github.com/patrimo/patrimo/contract/errors"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"user.registered", "user.registered", true},
		{"user.registered", "user.logged_in", false},

		{"user.*", "user.registered", true},
		{"user.*", "user.profile.added", false},
		{"*.registered", "user.registered", true},
		{"asset.*.added", "asset.cash.added", true},
		{"asset.*.added", "asset.updated", false},

		{"user.#", "user.registered", true},
		{"user.#", "user.profile.added", true},
		{"user.#", "user", true},
		{"user.#", "asset.updated", false},
		{"#", "networth.calculated", true},
		{"#", "user", true},
		{"asset.#", "asset.cash.added", true},
		{"#.added", "asset.cash.added", true},
		{"#.added", "asset.deleted", false},

		{"liability.*", "liability.short_term.added", false},
		{"liability.#", "liability.short_term.added", true},
	}

	for _, tc := range tests {
		if got := broker.Match(tc.pattern, tc.key); got != tc.want {
			t.Fatalf("Match(%q, %q) = %v, want %v", tc.pattern, tc.key, got, tc.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"user.#", "asset.#"}

	if !broker.MatchAny(patterns, "asset.cash.added") {
		t.Fatal("expected asset.cash.added to match")
	}

	if broker.MatchAny(patterns, "liability.updated") {
		t.Fatal("expected liability.updated not to match")
	}
}

func TestResolve(t *testing.T) {
	handlerErr := errors.New("handler blew up")
	malformed := perr.ErrMalformedEvent

	tests := []struct {
		name        string
		policy      broker.AckPolicy
		redelivered bool
		err         error
		want        broker.Outcome
	}{
		{"success acks", broker.AckOnError, false, nil, broker.OutcomeAck},
		{"malformed always drops", broker.RequeueOnError, false, malformed, broker.OutcomeDrop},
		{"default policy drops on handler error", broker.AckOnError, false, handlerErr, broker.OutcomeDrop},
		{"requeue policy requeues first failure", broker.RequeueOnError, false, handlerErr, broker.OutcomeRequeue},
		{"requeue policy drops redelivered failure", broker.RequeueOnError, true, handlerErr, broker.OutcomeDrop},
	}

	for _, tc := range tests {
		if got := broker.Resolve(tc.policy, tc.redelivered, tc.err); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
