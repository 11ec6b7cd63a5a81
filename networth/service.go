package networth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/patrimo/patrimo/aggregate"
	perr "github.com/patrimo/patrimo/contract/errors"
	"github.com/patrimo/patrimo/contract/event"
	"github.com/patrimo/patrimo/fabric"
	"github.com/patrimo/patrimo/platform/logger"
)

// Snapshot is derived, never stored; it may travel on as the
// networth.calculated event payload.
type Snapshot struct {
	UserID           string    `json:"userId"`
	TotalAssets      float64   `json:"totalAssets"`
	TotalLiabilities float64   `json:"totalLiabilities"`
	NetWorth         float64   `json:"netWorth"`
	CalculatedAt     time.Time `json:"calculatedAt"`
}

type Breakdown struct {
	Snapshot
	AssetsByType      map[string]float64 `json:"assetsByType"`
	LiabilitiesByType map[string]float64 `json:"liabilitiesByType"`
	AssetCount        int                `json:"assetCount"`
	LiabilityCount    int                `json:"liabilityCount"`
}

// Endpoints names the two downstream read surfaces. Assets first,
// liabilities second; the aggregator preserves that order.
type Endpoints struct {
	Assets         aggregate.Descriptor
	AssetTotals    string
	AssetList      string
	Liabilities    aggregate.Descriptor
	LiabilityTotal string
	LiabilityList  string
}

// Service computes net worth by fail-fast fan-out over exactly two
// downstream calls. Either dependency failing fails the whole request;
// no partial snapshot is ever produced.
type Service struct {
	eps     Endpoints
	client  *aggregate.Client
	timeout time.Duration
	pub     *fabric.Publisher
	log     *logger.Logger
}

func NewService(eps Endpoints, client *aggregate.Client, timeout time.Duration, pub *fabric.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}

	return &Service{
		eps:     eps,
		client:  client,
		timeout: timeout,
		pub:     pub,
		log:     log.With("service", "networth"),
	}
}

// Amount is a decimal field lenient about shape: numbers, numeric
// strings, null, and absence all parse; null and absence mean zero.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*a = 0
		return nil
	}

	if len(s) >= 2 && s[0] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}

		if strings.TrimSpace(u) == "" {
			*a = 0
			return nil
		}

		f, err := strconv.ParseFloat(u, 64)
		if err != nil {
			return err
		}

		*a = Amount(f)

		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}

	*a = Amount(f)

	return nil
}

type totalResponse struct {
	Total Amount `json:"total"`
}

// Entity is one downstream asset or liability record; Category is
// whatever value the data carries, with no fixed enumeration.
type Entity struct {
	Category string `json:"category"`
	Amount   Amount `json:"amount"`
}

// Calculate fans out to both total endpoints and derives the signed
// net worth. The caller's credential is forwarded verbatim.
func (s *Service) Calculate(ctx context.Context, userID, authorization string) (Snapshot, error) {
	results, err := s.fanOut(ctx, authorization, map[string]string{
		s.eps.Assets.Name:      s.eps.AssetTotals,
		s.eps.Liabilities.Name: s.eps.LiabilityTotal,
	})
	if err != nil {
		return Snapshot{}, err
	}

	var assets, liabilities totalResponse

	if err := json.Unmarshal(results[0].Value, &assets); err != nil {
		return Snapshot{}, fmt.Errorf("decode assets total: %w", perr.ErrDownstreamUnreachable)
	}

	if err := json.Unmarshal(results[1].Value, &liabilities); err != nil {
		return Snapshot{}, fmt.Errorf("decode liabilities total: %w", perr.ErrDownstreamUnreachable)
	}

	snap := Snapshot{
		UserID:           userID,
		TotalAssets:      float64(assets.Total),
		TotalLiabilities: float64(liabilities.Total),
		NetWorth:         float64(assets.Total) - float64(liabilities.Total),
		CalculatedAt:     time.Now().UTC(),
	}

	s.publishCalculated(ctx, snap)

	return snap, nil
}

// Breakdown fans out to both list endpoints and folds per-category sums.
// Category keys are open-ended: an unexpected category simply becomes a
// new key in the result map.
func (s *Service) Breakdown(ctx context.Context, userID, authorization string) (Breakdown, error) {
	results, err := s.fanOut(ctx, authorization, map[string]string{
		s.eps.Assets.Name:      s.eps.AssetList,
		s.eps.Liabilities.Name: s.eps.LiabilityList,
	})
	if err != nil {
		return Breakdown{}, err
	}

	var assets, liabilities []Entity

	if err := json.Unmarshal(results[0].Value, &assets); err != nil {
		return Breakdown{}, fmt.Errorf("decode asset list: %w", perr.ErrDownstreamUnreachable)
	}

	if err := json.Unmarshal(results[1].Value, &liabilities); err != nil {
		return Breakdown{}, fmt.Errorf("decode liability list: %w", perr.ErrDownstreamUnreachable)
	}

	assetsByType, totalAssets := foldByCategory(assets)
	liabilitiesByType, totalLiabilities := foldByCategory(liabilities)

	return Breakdown{
		Snapshot: Snapshot{
			UserID:           userID,
			TotalAssets:      totalAssets,
			TotalLiabilities: totalLiabilities,
			NetWorth:         totalAssets - totalLiabilities,
			CalculatedAt:     time.Now().UTC(),
		},
		AssetsByType:      assetsByType,
		LiabilitiesByType: liabilitiesByType,
		AssetCount:        len(assets),
		LiabilityCount:    len(liabilities),
	}, nil
}

// fanOut runs the two-descriptor fail-fast aggregation with a
// per-descriptor route table. Result order matches descriptor order:
// assets, then liabilities.
func (s *Service) fanOut(ctx context.Context, authorization string, routes map[string]string) ([]aggregate.Result, error) {
	call := func(ctx context.Context, d aggregate.Descriptor) (json.RawMessage, error) {
		return s.client.Get(ctx, d, routes[d.Name], authorization)
	}

	agg := aggregate.New(s.timeout, call, s.log)

	return agg.Do(ctx, []aggregate.Descriptor{s.eps.Assets, s.eps.Liabilities}, aggregate.FailFast)
}

func foldByCategory(entities []Entity) (map[string]float64, float64) {
	byCategory := make(map[string]float64)

	total := 0.0
	for _, e := range entities {
		byCategory[e.Category] += float64(e.Amount)
		total += float64(e.Amount)
	}

	return byCategory, total
}

// publishCalculated is fire-and-forget; an undelivered event never fails
// the request that produced the snapshot.
func (s *Service) publishCalculated(ctx context.Context, snap Snapshot) {
	if s.pub == nil {
		return
	}

	delivered, err := s.pub.Publish(ctx, event.TypeNetWorthCalculated, event.NetWorthCalculated{
		UserID:           snap.UserID,
		TotalAssets:      snap.TotalAssets,
		TotalLiabilities: snap.TotalLiabilities,
		NetWorth:         snap.NetWorth,
	})
	if err != nil || !delivered {
		s.log.Warn("networth.calculated not delivered", "user_id", snap.UserID, "error", err)
	}
}
