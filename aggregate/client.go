package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	perr "github.com/patrimo/patrimo/contract/errors"
	"github.com/patrimo/patrimo/platform/logger"
)

// Client performs the HTTP leg of an aggregation: GET against a
// descriptor's base address, forwarding the caller's credential
// verbatim. Downstream services authorize with that same credential;
// there is no service-to-service trust bypass.
type Client struct {
	http *http.Client
	log  *logger.Logger
}

func NewClient(log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}

	// no client-level timeout: each call is bounded by its context
	return &Client{http: &http.Client{}, log: log.With("component", "http_caller")}
}

// Caller returns a CallFunc hitting a fixed route on every descriptor.
func (c *Client) Caller(route, authorization string) CallFunc {
	return func(ctx context.Context, d Descriptor) (json.RawMessage, error) {
		return c.Get(ctx, d, route, authorization)
	}
}

// ProbeCaller returns a CallFunc hitting each descriptor's own probe route.
func (c *Client) ProbeCaller(authorization string) CallFunc {
	return func(ctx context.Context, d Descriptor) (json.RawMessage, error) {
		return c.Get(ctx, d, d.ProbeRoute, authorization)
	}
}

// Get performs one bounded GET against a descriptor route.
func (c *Client) Get(ctx context.Context, d Descriptor, route, authorization string) (json.RawMessage, error) {
	url := strings.TrimRight(d.BaseAddress, "/") + route

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}

	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// context errors pass through for classify to tag as timeout
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned %d: %w", d.Name, resp.StatusCode, perr.ErrDownstreamUnreachable)
	}

	return body, nil
}
