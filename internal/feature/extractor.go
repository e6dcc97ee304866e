// Package feature derives numeric feature vectors from canonical order book
// snapshots. Extraction is pure: the same snapshot and configuration always
// produce the same vector.
package feature

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Config controls extraction depths and the emitted feature set.
type Config struct {
	Set            domain.FeatureSet
	ImbalanceDepth int // levels summed for volume imbalance
	DepthLevels    int // levels summed for bid_depth / ask_depth
	LiquidityDepth int // levels summed for liquidity_ratio
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Set:            domain.FeatureSetBasic,
		ImbalanceDepth: 5,
		DepthLevels:    10,
		LiquidityDepth: 3,
	}
}

// Extractor computes feature vectors.
type Extractor struct {
	cfg       Config
	imbalance ImbalanceStrategy
}

// NewExtractor creates an Extractor. Non-positive depths fall back to the
// defaults.
func NewExtractor(cfg Config, imbalance ImbalanceStrategy) *Extractor {
	def := DefaultConfig()
	if cfg.Set == "" {
		cfg.Set = def.Set
	}
	if cfg.ImbalanceDepth <= 0 {
		cfg.ImbalanceDepth = def.ImbalanceDepth
	}
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = def.DepthLevels
	}
	if cfg.LiquidityDepth <= 0 {
		cfg.LiquidityDepth = def.LiquidityDepth
	}
	if imbalance == nil {
		imbalance = VolumeRatio{}
	}
	return &Extractor{cfg: cfg, imbalance: imbalance}
}

// Set returns the configured feature set.
func (e *Extractor) Set() domain.FeatureSet { return e.cfg.Set }

// Extract computes the feature vector for snap. It returns a
// *domain.FeatureComputationError when any configured feature is undefined.
func (e *Extractor) Extract(snap domain.OrderBookSnapshot) (domain.FeatureVector, error) {
	if len(snap.Bids) < 1 || len(snap.Asks) < 1 {
		return domain.FeatureVector{}, &domain.FeatureComputationError{
			Feature: "book",
			Reason:  "fewer than one level on a side",
		}
	}

	imb, err := e.imbalance.Imbalance(snap, e.cfg.ImbalanceDepth)
	if err != nil {
		return domain.FeatureVector{}, err
	}

	fv := domain.FeatureVector{
		Set:       e.cfg.Set,
		Imbalance: imb,
		Spread:    Spread(snap),
		BidDepth:  sumVolume(snap.Bids, e.cfg.DepthLevels).InexactFloat64(),
		AskDepth:  sumVolume(snap.Asks, e.cfg.DepthLevels).InexactFloat64(),
	}

	if e.cfg.Set != domain.FeatureSetExtended {
		return fv, nil
	}

	fv.Volatility = volumeVolatility(snap, e.cfg.ImbalanceDepth)
	fv.Momentum = momentum(snap, e.cfg.ImbalanceDepth)

	lr, err := liquidityRatio(snap, e.cfg.LiquidityDepth)
	if err != nil {
		return domain.FeatureVector{}, err
	}
	fv.LiquidityRatio = lr

	return fv, nil
}

// Spread returns (best_ask - best_bid) / mid.
func Spread(snap domain.OrderBookSnapshot) float64 {
	mid := snap.Mid()
	if mid.IsZero() {
		return 0
	}
	return snap.BestAsk().Sub(snap.BestBid()).Div(mid).InexactFloat64()
}

func sumVolume(levels []domain.PriceLevel, depth int) decimal.Decimal {
	total := decimal.Zero
	for i, lvl := range levels {
		if i >= depth {
			break
		}
		total = total.Add(lvl.Volume)
	}
	return total
}

// pooled returns the top-depth bid levels followed by the top-depth asks.
func pooled(snap domain.OrderBookSnapshot, depth int) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, 2*depth)
	for i := 0; i < len(snap.Bids) && i < depth; i++ {
		out = append(out, snap.Bids[i])
	}
	for i := 0; i < len(snap.Asks) && i < depth; i++ {
		out = append(out, snap.Asks[i])
	}
	return out
}

// volumeVolatility is the coefficient of variation of pooled level volumes.
func volumeVolatility(snap domain.OrderBookSnapshot, depth int) float64 {
	levels := pooled(snap, depth)
	if len(levels) == 0 {
		return 0
	}
	var sum float64
	vols := make([]float64, len(levels))
	for i, lvl := range levels {
		vols[i] = lvl.Volume.InexactFloat64()
		sum += vols[i]
	}
	mean := sum / float64(len(vols))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range vols {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq/float64(len(vols))) / mean
}

// momentum is the relative change from the first to the last pooled price.
func momentum(snap domain.OrderBookSnapshot, depth int) float64 {
	levels := pooled(snap, depth)
	if len(levels) < 2 {
		return 0
	}
	first := levels[0].Price
	if first.IsZero() {
		return 0
	}
	last := levels[len(levels)-1].Price
	return last.Sub(first).Div(first).InexactFloat64()
}

func liquidityRatio(snap domain.OrderBookSnapshot, depth int) (float64, error) {
	askVol := sumVolume(snap.Asks, depth)
	if askVol.IsZero() {
		return 0, &domain.FeatureComputationError{Feature: "liquidity_ratio", Reason: "zero ask volume"}
	}
	return sumVolume(snap.Bids, depth).Div(askVol).InexactFloat64(), nil
}
