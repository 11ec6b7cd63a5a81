package event

import (
	"encoding/json"
	"fmt"

	perr "github.com/patrimo/patrimo/contract/errors"
)

// Typed payload shapes, keyed by event type at the point of consumption.
// Handlers accept the shape they understand instead of untyped maps.

type UserRegistered struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type UserLoggedIn struct {
	UserID string `json:"userId"`
}

type ProfileChanged struct {
	UserID string `json:"userId"`
}

// AssetChanged covers every asset.* key; Category is the entity's
// category field ("cash", "investment", "property", "other", ...).
type AssetChanged struct {
	AssetID  string  `json:"assetId"`
	UserID   string  `json:"userId"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// LiabilityChanged covers every liability.* key.
type LiabilityChanged struct {
	LiabilityID string  `json:"liabilityId"`
	UserID      string  `json:"userId"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
}

type NetWorthCalculated struct {
	UserID           string  `json:"userId"`
	TotalAssets      float64 `json:"totalAssets"`
	TotalLiabilities float64 `json:"totalLiabilities"`
	NetWorth         float64 `json:"netWorth"`
}

type DocumentChanged struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	Name       string `json:"name"`
}

// Payload decodes the envelope's data into the struct registered for its
// event type. Unknown types decode into a map so observational handlers
// still see the fields. A payload that cannot be parsed is permanent
// (ErrMalformedEvent).
func (e Envelope) Payload() (any, error) {
	var v any

	switch e.EventType {
	case TypeUserRegistered:
		v = &UserRegistered{}
	case TypeUserLoggedIn:
		v = &UserLoggedIn{}
	case TypeUserProfileAdded, TypeUserProfileUpdated:
		v = &ProfileChanged{}
	case TypeAssetCashAdded, TypeAssetInvestmentAdded, TypeAssetPropertyAdded,
		TypeAssetOtherAdded, TypeAssetUpdated, TypeAssetDeleted:
		v = &AssetChanged{}
	case TypeLiabilityShortTermAdded, TypeLiabilityLongTermAdded,
		TypeLiabilityUpdated, TypeLiabilityDeleted:
		v = &LiabilityChanged{}
	case TypeNetWorthCalculated:
		v = &NetWorthCalculated{}
	case TypeDocumentAdded, TypeDocumentDeleted:
		v = &DocumentChanged{}
	default:
		v = &map[string]any{}
	}

	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.EventType, perr.ErrMalformedEvent)
		}
	}

	return deref(v), nil
}

func deref(v any) any {
	switch t := v.(type) {
	case *UserRegistered:
		return *t
	case *UserLoggedIn:
		return *t
	case *ProfileChanged:
		return *t
	case *AssetChanged:
		return *t
	case *LiabilityChanged:
		return *t
	case *NetWorthCalculated:
		return *t
	case *DocumentChanged:
		return *t
	case *map[string]any:
		return *t
	default:
		return v
	}
}
