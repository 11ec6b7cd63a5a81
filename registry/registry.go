package registry

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patrimo/patrimo/aggregate"
	perr "github.com/patrimo/patrimo/contract/errors"
	"github.com/patrimo/patrimo/platform/logger"
)

// Status is one service's liveness probe outcome: the full descriptor
// plus an up/down tag. Every registered service always gets exactly one
// entry regardless of how the others fared.
type Status struct {
	aggregate.Descriptor `yaml:",inline"`
	Status               string `json:"status"`
}

const (
	StatusUp   = "up"
	StatusDown = "down"
)

type registryFile struct {
	Services []aggregate.Descriptor `yaml:"services"`
}

// LoadDescriptors reads the static service set from a YAML file. The set
// is loaded once at startup and immutable afterwards.
func LoadDescriptors(path string) ([]aggregate.Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file %s: %w", path, err)
	}

	var f registryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}

	if len(f.Services) == 0 {
		return nil, fmt.Errorf("registry file %s: %w", path, perr.ErrEmptyDescriptorSet)
	}

	for i, d := range f.Services {
		if d.Name == "" || d.BaseAddress == "" {
			return nil, fmt.Errorf("registry file %s: service %d missing name or baseAddress", path, i)
		}

		if d.ProbeRoute == "" {
			f.Services[i].ProbeRoute = "/health"
		}
	}

	return f.Services, nil
}

// Registry probes every registered service concurrently. The probe never
// errors: a failed or timed-out call degrades to status "down" for that
// descriptor alone.
type Registry struct {
	descriptors []aggregate.Descriptor
	client      *aggregate.Client
	timeout     time.Duration
	log         *logger.Logger
}

func New(descriptors []aggregate.Descriptor, client *aggregate.Client, timeout time.Duration, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}

	return &Registry{
		descriptors: descriptors,
		client:      client,
		timeout:     timeout,
		log:         log.With("service", "registry"),
	}
}

// Services returns the immutable descriptor set.
func (r *Registry) Services() []aggregate.Descriptor {
	return append([]aggregate.Descriptor(nil), r.descriptors...)
}

// Probe checks every service's liveness route under DegradePerItem:
// the response always has one Status per descriptor, in registration
// order, and one service's failure never flips another's status.
func (r *Registry) Probe(ctx context.Context, authorization string) ([]Status, error) {
	agg := aggregate.New(r.timeout, r.client.ProbeCaller(authorization), r.log)

	results, err := agg.Do(ctx, r.descriptors, aggregate.DegradePerItem)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, len(results))
	for i, res := range results {
		status := StatusDown
		if res.Succeeded {
			status = StatusUp
		}

		statuses[i] = Status{Descriptor: res.Descriptor, Status: status}
	}

	return statuses, nil
}
