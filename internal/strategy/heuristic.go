package strategy

import (
	"context"
	"math"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Heuristic signals on imbalance alone.
type Heuristic struct {
	cfg Config
}

var _ Generator = (*Heuristic)(nil)

// NewHeuristic creates a Heuristic generator.
func NewHeuristic(cfg Config) *Heuristic {
	return &Heuristic{cfg: cfg}
}

func (h *Heuristic) Name() string { return NameHeuristic }

// Generate emits Buy when imbalance > threshold and Sell when
// imbalance < -threshold.
func (h *Heuristic) Generate(_ context.Context, fv domain.FeatureVector, confidence *float64) (*domain.Signal, error) {
	var side domain.Side
	switch {
	case fv.Imbalance > h.cfg.MinImbalance:
		side = domain.SideBuy
	case fv.Imbalance < -h.cfg.MinImbalance:
		side = domain.SideSell
	default:
		return nil, nil
	}

	conf := math.Min(math.Abs(fv.Imbalance), 1)
	if confidence != nil {
		conf = *confidence
	}
	return h.cfg.signal(NameHeuristic, side, conf, fv.Imbalance), nil
}
