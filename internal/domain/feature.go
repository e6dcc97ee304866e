package domain

import "fmt"

// FeatureSet selects which fields of a FeatureVector are fed to a scorer.
type FeatureSet string

const (
	// FeatureSetBasic is imbalance, spread, bid_depth, ask_depth.
	FeatureSetBasic FeatureSet = "basic"
	// FeatureSetExtended adds volatility, momentum and liquidity_ratio.
	FeatureSetExtended FeatureSet = "extended"
)

// ParseFeatureSet validates a configured feature set name.
func ParseFeatureSet(s string) (FeatureSet, error) {
	switch FeatureSet(s) {
	case FeatureSetBasic, FeatureSetExtended:
		return FeatureSet(s), nil
	default:
		return "", fmt.Errorf("unknown feature set %q", s)
	}
}

// Arity returns the number of values Values produces for the set.
func (fs FeatureSet) Arity() int {
	if fs == FeatureSetExtended {
		return 7
	}
	return 4
}

// FeatureVector holds the numeric features derived from one snapshot.
type FeatureVector struct {
	Set            FeatureSet
	Imbalance      float64
	Spread         float64
	BidDepth       float64
	AskDepth       float64
	Volatility     float64
	Momentum       float64
	LiquidityRatio float64
}

// Values returns the fixed-arity tuple for the vector's feature set.
func (fv FeatureVector) Values() []float64 {
	vals := []float64{fv.Imbalance, fv.Spread, fv.BidDepth, fv.AskDepth}
	if fv.Set == FeatureSetExtended {
		vals = append(vals, fv.Volatility, fv.Momentum, fv.LiquidityRatio)
	}
	return vals
}
