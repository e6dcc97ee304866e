package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/feature"
)

type fakeScorer struct {
	score float64
	err   error
	calls int
}

func (f *fakeScorer) Score(context.Context, []float64) (float64, error) {
	f.calls++
	return f.score, f.err
}

func (f *fakeScorer) Arity() int { return 4 }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinImbalance = 0.2
	cfg.SpreadThreshold = 0.01
	return cfg
}

func ptr(v float64) *float64 { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestHeuristicThresholdIsStrict(t *testing.T) {
	h := NewHeuristic(testConfig())
	ctx := context.Background()

	tests := []struct {
		imbalance float64
		want      domain.Side
	}{
		{0.2, ""},
		{-0.2, ""},
		{0.21, domain.SideBuy},
		{-0.21, domain.SideSell},
		{0, ""},
	}
	for _, tt := range tests {
		sig, err := h.Generate(ctx, domain.FeatureVector{Imbalance: tt.imbalance}, nil)
		require.NoError(t, err)
		if tt.want == "" {
			assert.Nil(t, sig, "imbalance %v", tt.imbalance)
			continue
		}
		require.NotNil(t, sig, "imbalance %v", tt.imbalance)
		assert.Equal(t, tt.want, sig.Side)
	}
}

func TestHeuristicConfidence(t *testing.T) {
	h := NewHeuristic(testConfig())
	sig, err := h.Generate(context.Background(), domain.FeatureVector{Imbalance: -0.5}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sig.Confidence, 1e-12)

	sig, err = h.Generate(context.Background(), domain.FeatureVector{Imbalance: 0.5}, ptr(0.9))
	require.NoError(t, err)
	assert.InDelta(t, 0.9, sig.Confidence, 1e-12)
}

func TestHeuristicCopiesRiskParameters(t *testing.T) {
	cfg := testConfig()
	sig, err := NewHeuristic(cfg).Generate(context.Background(), domain.FeatureVector{Imbalance: 0.9}, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.ProfitTargetPct, sig.ProfitTargetPct)
	assert.Equal(t, cfg.StopLossPct, sig.StopLossPct)
	assert.Equal(t, cfg.PositionSizePct, sig.PositionSizePct)
	assert.True(t, cfg.Quantity.Equal(sig.Quantity))
	assert.Equal(t, NameHeuristic, sig.Source)
}

func TestHeuristicMidDistanceExample(t *testing.T) {
	snap := domain.OrderBookSnapshot{
		Bids: []domain.PriceLevel{{Price: dec("100"), Volume: dec("1")}},
		Asks: []domain.PriceLevel{{Price: dec("101"), Volume: dec("1")}},
	}
	fv, err := feature.NewExtractor(feature.DefaultConfig(), feature.MidDistance{}).Extract(snap)
	require.NoError(t, err)

	sig, err := NewHeuristic(testConfig()).Generate(context.Background(), fv, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SideBuy, sig.Side)
	assert.InDelta(t, 0.5, sig.Imbalance, 1e-12)
}

func TestProbabilityWideSpreadNeverSignals(t *testing.T) {
	scorer := &fakeScorer{score: 0.99}
	p := NewProbabilityGated(testConfig(), scorer)

	for _, imb := range []float64{0.9, -0.9} {
		sig, err := p.Generate(context.Background(), domain.FeatureVector{Imbalance: imb, Spread: 0.05}, nil)
		require.NoError(t, err)
		assert.Nil(t, sig)
	}
	assert.Zero(t, scorer.calls)
}

func TestProbabilityGating(t *testing.T) {
	tests := []struct {
		name      string
		imbalance float64
		score     float64
		want      domain.Side
	}{
		{"buy", 0.5, 0.7, domain.SideBuy},
		{"sell", -0.5, 0.7, domain.SideSell},
		{"confidence at threshold", 0.5, 0.6, ""},
		{"imbalance at threshold", 0.2, 0.9, ""},
		{"low confidence", -0.5, 0.1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProbabilityGated(testConfig(), &fakeScorer{score: tt.score})
			sig, err := p.Generate(context.Background(), domain.FeatureVector{Imbalance: tt.imbalance, Spread: 0.001}, nil)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, sig)
				return
			}
			require.NotNil(t, sig)
			assert.Equal(t, tt.want, sig.Side)
			assert.InDelta(t, tt.score, sig.Confidence, 1e-12)
		})
	}
}

func TestProbabilityScoringFailure(t *testing.T) {
	p := NewProbabilityGated(testConfig(), &fakeScorer{err: errors.New("timeout")})
	sig, err := p.Generate(context.Background(), domain.FeatureVector{Imbalance: 0.5}, nil)
	assert.Nil(t, sig)

	var sse *domain.ScoringServiceError
	require.True(t, errors.As(err, &sse))
	assert.Contains(t, err.Error(), "timeout")
}

func TestProbabilityRejectsOutOfRangeScore(t *testing.T) {
	p := NewProbabilityGated(testConfig(), &fakeScorer{score: 1.5})
	_, err := p.Generate(context.Background(), domain.FeatureVector{Imbalance: 0.5}, nil)

	var sse *domain.ScoringServiceError
	assert.True(t, errors.As(err, &sse))
}

func TestProbabilitySuppliedConfidenceSkipsScorer(t *testing.T) {
	scorer := &fakeScorer{score: 0}
	p := NewProbabilityGated(testConfig(), scorer)
	sig, err := p.Generate(context.Background(), domain.FeatureVector{Imbalance: 0.5}, ptr(0.8))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Zero(t, scorer.calls)
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{NameHeuristic, NameProbability}, r.List())

	cfg := testConfig()
	g, err := r.Build(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, NameHeuristic, g.Name())

	cfg.Name = NameProbability
	_, err = r.Build(cfg, nil)
	assert.Error(t, err)

	g, err = r.Build(cfg, &fakeScorer{})
	require.NoError(t, err)
	assert.Equal(t, NameProbability, g.Name())

	cfg.Name = "momentum"
	_, err = r.Build(cfg, nil)
	assert.Error(t, err)
}
