package errors

// Error codes for the coordination layer. Keep stable; checked across
// broker adapters, the fabric, and the aggregator.
const (
	ErrCodeBrokerUnavailable     = "patrimo.broker_unavailable"
	ErrCodeMalformedEvent        = "patrimo.malformed_event"
	ErrCodeDownstreamUnreachable = "patrimo.downstream_unreachable"
	ErrCodeDownstreamTimeout     = "patrimo.downstream_timeout"
	ErrCodeSerializationFailed   = "patrimo.serialization_failed"
	ErrCodeInvalidEventType      = "patrimo.invalid_event_type"
	ErrCodeEmptyDescriptorSet    = "patrimo.empty_descriptor_set"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	// ErrBrokerUnavailable is transient: the connection manager retries
	// forever and requests proceed without event delivery.
	ErrBrokerUnavailable = Code(ErrCodeBrokerUnavailable)

	// ErrMalformedEvent is permanent: the message is acknowledged and
	// dropped, never requeued.
	ErrMalformedEvent = Code(ErrCodeMalformedEvent)

	ErrDownstreamUnreachable = Code(ErrCodeDownstreamUnreachable)
	ErrDownstreamTimeout     = Code(ErrCodeDownstreamTimeout)
	ErrSerializationFailed   = Code(ErrCodeSerializationFailed)
	ErrInvalidEventType      = Code(ErrCodeInvalidEventType)
	ErrEmptyDescriptorSet    = Code(ErrCodeEmptyDescriptorSet)
)
