package feature

import (
	"fmt"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// ImbalanceStrategy computes the signed book imbalance used by the signal
// generators. Two formulas are in use and neither is canonical, so they are
// selected by name.
type ImbalanceStrategy interface {
	Name() string
	Imbalance(snap domain.OrderBookSnapshot, depth int) (float64, error)
}

const (
	ImbalanceVolumeRatio = "volume_ratio"
	ImbalanceMidDistance = "mid_distance"
)

// NewImbalanceStrategy resolves a configured strategy name.
func NewImbalanceStrategy(name string) (ImbalanceStrategy, error) {
	switch name {
	case ImbalanceVolumeRatio, "":
		return VolumeRatio{}, nil
	case ImbalanceMidDistance:
		return MidDistance{}, nil
	default:
		return nil, fmt.Errorf("feature: unknown imbalance strategy %q", name)
	}
}

// VolumeRatio is (bid_vol_N - ask_vol_N) / (bid_vol_N + ask_vol_N).
type VolumeRatio struct{}

func (VolumeRatio) Name() string { return ImbalanceVolumeRatio }

func (VolumeRatio) Imbalance(snap domain.OrderBookSnapshot, depth int) (float64, error) {
	bidVol := sumVolume(snap.Bids, depth)
	askVol := sumVolume(snap.Asks, depth)
	total := bidVol.Add(askVol)
	if total.IsZero() {
		return 0, &domain.FeatureComputationError{Feature: "imbalance", Reason: "zero volume on both sides"}
	}
	return bidVol.Sub(askVol).Div(total).InexactFloat64(), nil
}

// MidDistance is (best_ask - mid) / (best_ask - best_bid).
type MidDistance struct{}

func (MidDistance) Name() string { return ImbalanceMidDistance }

func (MidDistance) Imbalance(snap domain.OrderBookSnapshot, _ int) (float64, error) {
	width := snap.BestAsk().Sub(snap.BestBid())
	if !width.IsPositive() {
		return 0, &domain.FeatureComputationError{Feature: "imbalance", Reason: "non-positive book width"}
	}
	return snap.BestAsk().Sub(snap.Mid()).Div(width).InexactFloat64(), nil
}
