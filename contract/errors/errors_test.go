package errors_test

import (
	"errors"
	"fmt"
	"testing"

	perr "github.com/patrimo/patrimo/contract/errors"
)

func TestCodeAndVars(t *testing.T) {
	e := perr.Code(perr.ErrCodeBrokerUnavailable)
	if e.Error() != perr.ErrCodeBrokerUnavailable {
		t.Fatalf("unexpected error string: %s", e.Error())
	}

	// exported variables must carry their codes
	tests := []struct {
		err  error
		code string
	}{
		{perr.ErrBrokerUnavailable, perr.ErrCodeBrokerUnavailable},
		{perr.ErrMalformedEvent, perr.ErrCodeMalformedEvent},
		{perr.ErrDownstreamUnreachable, perr.ErrCodeDownstreamUnreachable},
		{perr.ErrDownstreamTimeout, perr.ErrCodeDownstreamTimeout},
		{perr.ErrSerializationFailed, perr.ErrCodeSerializationFailed},
		{perr.ErrInvalidEventType, perr.ErrCodeInvalidEventType},
		{perr.ErrEmptyDescriptorSet, perr.ErrCodeEmptyDescriptorSet},
	}

	for _, tc := range tests {
		if !errors.Is(tc.err, perr.Code(tc.code)) {
			t.Fatalf("expected %s to be %s", tc.err, tc.code)
		}
	}
}

func TestWrappedCodesSurviveIs(t *testing.T) {
	wrapped := fmt.Errorf("probe user-service: %w", perr.ErrDownstreamTimeout)
	if !errors.Is(wrapped, perr.ErrDownstreamTimeout) {
		t.Fatalf("wrapped error lost its code: %v", wrapped)
	}

	if errors.Is(wrapped, perr.ErrDownstreamUnreachable) {
		t.Fatalf("timeout must not match unreachable")
	}
}
