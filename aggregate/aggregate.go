package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	perr "github.com/patrimo/patrimo/contract/errors"
	"github.com/patrimo/patrimo/platform/logger"
)

// Descriptor identifies one downstream service. Static, loaded at
// startup, immutable.
type Descriptor struct {
	Name        string `json:"name" yaml:"name"`
	BaseAddress string `json:"baseAddress" yaml:"baseAddress"`
	ProbeRoute  string `json:"probeRoute" yaml:"probeRoute"`
}

// Mode is the failure policy of one aggregation. It is caller data, not
// a property of the engine, so both policies run against the same code.
type Mode int

const (
	// FailFast aborts the whole aggregation on the first failure,
	// including a timeout. No partial results are returned.
	FailFast Mode = iota

	// DegradePerItem maps each failed call to a tagged unsuccessful
	// result; the aggregation itself never fails.
	DegradePerItem
)

// Result is the per-descriptor outcome of one aggregation request.
// Every input descriptor yields exactly one Result, in input order.
type Result struct {
	Descriptor Descriptor
	Succeeded  bool
	Value      json.RawMessage
	Err        error
}

// CallFunc performs one bounded downstream call.
type CallFunc func(ctx context.Context, d Descriptor) (json.RawMessage, error)

// Aggregator issues N independent calls concurrently, each bounded by
// Timeout, and folds the outcomes under the requested Mode.
type Aggregator struct {
	timeout time.Duration
	call    CallFunc
	log     *logger.Logger
}

func New(timeout time.Duration, call CallFunc, log *logger.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	if log == nil {
		log = logger.Nop()
	}

	return &Aggregator{timeout: timeout, call: call, log: log.With("component", "aggregator")}
}

// Do fans out over descs. In FailFast mode the first error cancels the
// siblings and surfaces as the single aggregate error. In DegradePerItem
// mode each call gets its own timeout derived from ctx, a timeout
// cancels only that call, and the result set always has the input's
// cardinality and order.
func (a *Aggregator) Do(ctx context.Context, descs []Descriptor, mode Mode) ([]Result, error) {
	if len(descs) == 0 {
		return nil, perr.ErrEmptyDescriptorSet
	}

	results := make([]Result, len(descs))

	if mode == FailFast {
		g, gctx := errgroup.WithContext(ctx)

		for i, d := range descs {
			i, d := i, d
			g.Go(func() error {
				cctx, cancel := context.WithTimeout(gctx, a.timeout)
				defer cancel()

				v, err := a.call(cctx, d)
				if err != nil {
					return fmt.Errorf("%s: %w", d.Name, classify(err))
				}

				results[i] = Result{Descriptor: d, Succeeded: true, Value: v}

				return nil
			})
		}

		if err := g.Wait(); err != nil {
			a.log.Warn("aggregation aborted", "error", err)
			return nil, err
		}

		return results, nil
	}

	var wg sync.WaitGroup

	for i, d := range descs {
		wg.Add(1)

		go func(i int, d Descriptor) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			v, err := a.call(cctx, d)
			if err != nil {
				a.log.Warn("downstream call degraded", "service", d.Name, "error", err)
				results[i] = Result{Descriptor: d, Err: classify(err)}

				return
			}

			results[i] = Result{Descriptor: d, Succeeded: true, Value: v}
		}(i, d)
	}

	wg.Wait()

	return results, nil
}

// classify folds transport errors into the two downstream kinds. A
// timeout is its own code but callers treat the two identically.
func classify(err error) error {
	switch {
	case errors.Is(err, perr.ErrDownstreamTimeout), errors.Is(err, perr.ErrDownstreamUnreachable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(perr.ErrDownstreamTimeout, err)
	default:
		return errors.Join(perr.ErrDownstreamUnreachable, err)
	}
}
