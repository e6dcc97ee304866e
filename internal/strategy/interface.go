package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Generator turns a feature vector into at most one trade signal. A nil
// signal with a nil error means "no signal".
//
// confidence, when non-nil, is a pre-computed score that generators use in
// place of their own.
type Generator interface {
	Name() string
	Generate(ctx context.Context, fv domain.FeatureVector, confidence *float64) (*domain.Signal, error)
}

// Config holds generator configuration. Thresholds are compared strictly.
type Config struct {
	Name            string
	MinImbalance    float64
	SpreadThreshold float64
	ModelConfidence float64
	ProfitTargetPct float64
	StopLossPct     float64
	PositionSizePct float64
	Quantity        decimal.Decimal
}

// DefaultConfig returns the production generator defaults.
func DefaultConfig() Config {
	return Config{
		Name:            NameHeuristic,
		MinImbalance:    0.15,
		SpreadThreshold: 0.002,
		ModelConfidence: 0.6,
		ProfitTargetPct: 0.002,
		StopLossPct:     0.001,
		PositionSizePct: 0.01,
		Quantity:        decimal.RequireFromString("0.01"),
	}
}

// signal builds an emitted signal carrying the static risk parameters.
func (c Config) signal(source string, side domain.Side, confidence, imbalance float64) *domain.Signal {
	return &domain.Signal{
		Source:          source,
		Side:            side,
		Confidence:      confidence,
		Imbalance:       imbalance,
		ProfitTargetPct: c.ProfitTargetPct,
		StopLossPct:     c.StopLossPct,
		PositionSizePct: c.PositionSizePct,
		Quantity:        c.Quantity,
	}
}
