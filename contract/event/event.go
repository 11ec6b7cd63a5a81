package event

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	perr "github.com/patrimo/patrimo/contract/errors"
)

// Envelope is the wire contract shared by every service: a JSON object
// published as the message body, with the event type doubling as the
// broker routing key. Envelopes are immutable once published.
type Envelope struct {
	// ID is the globally unique ID of the event.
	ID string `json:"id"`

	// EventType is a dot-segmented type name, e.g. "asset.cash.added".
	EventType string `json:"eventType"`

	// Data is the opaque payload; consumers decode it per EventType.
	Data json.RawMessage `json:"data"`

	// Timestamp is the publish time, serialized as ISO-8601.
	Timestamp time.Time `json:"timestamp"`
}

// Routing keys published across the system. Subscribers bind wildcard
// patterns against these ("*" matches one segment, "#" zero or more).
const (
	TypeUserRegistered     = "user.registered"
	TypeUserLoggedIn       = "user.logged_in"
	TypeUserProfileAdded   = "user.profile.added"
	TypeUserProfileUpdated = "user.profile.updated"

	TypeAssetCashAdded       = "asset.cash.added"
	TypeAssetInvestmentAdded = "asset.investment.added"
	TypeAssetPropertyAdded   = "asset.property.added"
	TypeAssetOtherAdded      = "asset.other.added"
	TypeAssetUpdated         = "asset.updated"
	TypeAssetDeleted         = "asset.deleted"

	TypeLiabilityShortTermAdded = "liability.short_term.added"
	TypeLiabilityLongTermAdded  = "liability.long_term.added"
	TypeLiabilityUpdated        = "liability.updated"
	TypeLiabilityDeleted        = "liability.deleted"

	TypeNetWorthCalculated = "networth.calculated"

	TypeDocumentAdded   = "document.added"
	TypeDocumentDeleted = "document.deleted"
)

var typeRE = regexp.MustCompile(`^[a-z_]+(\.[a-z_]+)+$`)

// ValidType reports whether s is a well-formed dot-segmented event type.
func ValidType(s string) bool { return typeRE.MatchString(s) }

// New builds an Envelope around data with a fresh ID and the current time.
// The event type is validated; the payload is serialized once, here.
func New(eventType string, data any) (Envelope, error) {
	if !ValidType(eventType) {
		return Envelope{}, fmt.Errorf("event type %q: %w", eventType, perr.ErrInvalidEventType)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, perr.ErrSerializationFailed)
	}

	return Envelope{
		ID:        uuid.NewString(),
		EventType: eventType,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode parses raw message bytes into an Envelope. A parse failure is a
// permanent error (ErrMalformedEvent); callers must drop, not retry.
func Decode(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", perr.ErrMalformedEvent)
	}

	if !ValidType(e.EventType) {
		return Envelope{}, fmt.Errorf("event type %q: %w", e.EventType, perr.ErrMalformedEvent)
	}

	return e, nil
}

// Is returns true if the envelope is one of the passed types.
func (e Envelope) Is(types ...string) bool {
	for _, t := range types {
		if e.EventType == t {
			return true
		}
	}

	return false
}
