package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hftbot/internal/dataset"
	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/executor"
	"github.com/alanyoungcy/hftbot/internal/feature"
	"github.com/alanyoungcy/hftbot/internal/ledger"
	"github.com/alanyoungcy/hftbot/internal/service"
	"github.com/alanyoungcy/hftbot/internal/strategy"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testRows() []dataset.Row {
	return []dataset.Row{
		{Line: 2, Timestamp: "2024-03-01 00:00:00", OrderBook: `{"bids": [[100, 3]], "asks": [[101, 1]]}`},
		{Line: 3, OrderBook: `{"timestamp": "2024-03-01T00:01:00Z", "bids": [[100, 1]], "asks": [[101, 3]]}`},
		{Line: 4, OrderBook: `{"timestamp": "2024-03-01T00:01:30Z", "bids": [[102, 1]], "asks": [[101, 1]]}`},
		{Line: 5, OrderBook: `{"timestamp": "2024-03-01T00:00:30Z", "bids": [[100, 1]], "asks": [[101, 9]]}`},
		{Line: 6, OrderBook: `{"timestamp": "2024-03-01T00:02:00Z", "bids": [{"price": 100, "qty": 1}], "asks": [{"price": 101, "qty": 1}]}`},
		{Line: 7, OrderBook: `{"timestamp": "2024-03-01T00:03:00Z", "bids": [[101, 5]], "asks": [[102, 1]]}`},
		{Line: 8, OrderBook: ``},
	}
}

func testBacktestConfig(model executor.FillModel) BacktestConfig {
	return BacktestConfig{
		Symbol:         "SOLUSDT",
		InitialBalance: 10000,
		Risk:           service.RiskConfig{MaxPosition: dec("0.1"), MaxLoss: dec("-500")},
		FillModel:      model,
	}
}

func testStrategy() strategy.Config {
	cfg := strategy.DefaultConfig()
	cfg.MinImbalance = 0.2
	return cfg
}

func newBacktester(model executor.FillModel) *Backtester {
	ext := feature.NewExtractor(feature.DefaultConfig(), feature.VolumeRatio{})
	return NewBacktester(testBacktestConfig(model), ext, strategy.NewHeuristic(testStrategy()), nil, discard())
}

func TestBacktestSpreadCapture(t *testing.T) {
	res, err := newBacktester(executor.FillSpreadCapture).Run(context.Background(), testRows())
	require.NoError(t, err)

	assert.Equal(t, Counters{
		Rows:       7,
		Malformed:  2,
		OutOfOrder: 1,
		Snapshots:  4,
		NoSignal:   1,
		Trades:     3,
	}, res.Counters)
	assert.False(t, res.NoTrades)

	trades := res.Ledger.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, domain.SideBuy, trades[0].Side)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), trades[0].Timestamp)
	assert.Equal(t, domain.SideSell, trades[1].Side)
	assert.Equal(t, "0.01", trades[2].Profit.String())

	assert.InDelta(t, 10000.03, res.Metrics.FinalBalance, 1e-9)
	assert.Equal(t, "0.01", res.FinalState.CurrentPosition.String())
}

func TestBacktestNextTickLastSnapshotCannotFill(t *testing.T) {
	res, err := newBacktester(executor.FillNextTick).Run(context.Background(), testRows())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Counters.Trades)
	assert.Equal(t, 1, res.Counters.ExecErrors)
}

func TestBacktestIsDeterministic(t *testing.T) {
	bt := newBacktester(executor.FillNextTick)

	first, err := bt.Run(context.Background(), testRows())
	require.NoError(t, err)
	second, err := bt.Run(context.Background(), testRows())
	require.NoError(t, err)

	a, err := ledger.Encode(first.Ledger.Trades())
	require.NoError(t, err)
	b, err := ledger.Encode(second.Ledger.Trades())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, first.Metrics, second.Metrics)
	assert.Equal(t, first.Counters, second.Counters)
}

func TestBacktestNoTrades(t *testing.T) {
	rows := []dataset.Row{
		{Line: 2, OrderBook: `{"timestamp": "2024-03-01T00:00:00Z", "bids": [[100, 1]], "asks": [[101, 1]]}`},
	}
	res, err := newBacktester(executor.FillSpreadCapture).Run(context.Background(), rows)
	require.NoError(t, err)
	assert.True(t, res.NoTrades)
	assert.Zero(t, res.Metrics.TotalTrades)
}

type failingScorer struct{ calls int }

func (s *failingScorer) Score(context.Context, []float64) (float64, error) {
	s.calls++
	return 0, errors.New("model endpoint unavailable")
}

func (s *failingScorer) Arity() int { return domain.FeatureSetBasic.Arity() }

func TestBacktestScoringFailureYieldsNoSignal(t *testing.T) {
	rows := []dataset.Row{
		{Line: 2, OrderBook: `{"timestamp": "2024-03-01T00:00:00Z", "bids": [[100, 5]], "asks": [[100.1, 1]]}`},
		{Line: 3, OrderBook: `{"timestamp": "2024-03-01T00:00:01Z", "bids": [[100, 1]], "asks": [[100.1, 5]]}`},
		{Line: 4, OrderBook: `{"timestamp": "2024-03-01T00:00:02Z", "bids": [[100, 5]], "asks": [[101, 1]]}`},
		{Line: 5, OrderBook: `{"timestamp": "2024-03-01T00:00:03Z", "bids": [[100, 5]], "asks": [[100.1, 1]]}`},
	}
	scorer := &failingScorer{}
	ext := feature.NewExtractor(feature.DefaultConfig(), feature.VolumeRatio{})
	gen := strategy.NewProbabilityGated(testStrategy(), scorer)
	bt := NewBacktester(testBacktestConfig(executor.FillSpreadCapture), ext, gen, nil, discard())

	res, err := bt.Run(context.Background(), rows)
	require.NoError(t, err)
	// The wide book on line 4 is gated before the scorer is asked.
	assert.Equal(t, 3, scorer.calls)
	assert.Equal(t, 3, res.Counters.ScoringErrors)
	assert.Equal(t, 1, res.Counters.NoSignal)
	assert.Equal(t, 4, res.Counters.Snapshots)
	assert.True(t, res.NoTrades)
	assert.Zero(t, res.Ledger.Len())
}

func TestBacktestRiskCapsPosition(t *testing.T) {
	var rows []dataset.Row
	for i := 0; i < 30; i++ {
		rows = append(rows, dataset.Row{
			Line:      i + 2,
			OrderBook: fmt.Sprintf(`{"timestamp": "2024-03-01T00:00:%02dZ", "bids": [[100, 5]], "asks": [[101, 1]]}`, i),
		})
	}
	res, err := newBacktester(executor.FillSpreadCapture).Run(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Counters.Trades)
	assert.Equal(t, 20, res.Counters.Rejected)
	assert.Equal(t, "0.1", res.FinalState.CurrentPosition.String())
}

func TestBacktestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newBacktester(executor.FillSpreadCapture).Run(ctx, testRows())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSweepKeepsVariantOrder(t *testing.T) {
	sw := NewSweeper(testBacktestConfig(executor.FillSpreadCapture), strategy.NewRegistry(), nil, discard())

	loose := testStrategy()
	strict := testStrategy()
	strict.MinImbalance = 0.9

	results, err := sw.Run(context.Background(), testRows(), []Variant{
		{Name: "loose", Strategy: loose, Feature: feature.DefaultConfig()},
		{Name: "strict", Strategy: strict, Feature: feature.DefaultConfig()},
		{Name: "next", Strategy: loose, Feature: feature.DefaultConfig(), FillModel: executor.FillNextTick},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "loose", results[0].Name)
	assert.Equal(t, 3, results[0].Counters.Trades)
	assert.Equal(t, "strict", results[1].Name)
	assert.True(t, results[1].NoTrades)
	assert.Equal(t, executor.FillNextTick, results[2].FillModel)
	assert.Equal(t, 2, results[2].Counters.Trades)
}

func TestSweepRejectsUnknownGenerator(t *testing.T) {
	sw := NewSweeper(testBacktestConfig(executor.FillSpreadCapture), strategy.NewRegistry(), nil, discard())
	cfg := testStrategy()
	cfg.Name = "probability"

	_, err := sw.Run(context.Background(), testRows(), []Variant{{Name: "p", Strategy: cfg}})
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	b := Backoff{Min: 250 * time.Millisecond, Max: 30 * time.Second, Factor: 2}
	assert.Equal(t, 250*time.Millisecond, b.Next(0))
	assert.Equal(t, 250*time.Millisecond, b.Next(1))
	assert.Equal(t, 500*time.Millisecond, b.Next(2))
	assert.Equal(t, 2*time.Second, b.Next(4))
	assert.Equal(t, 30*time.Second, b.Next(20))

	j := DefaultBackoff()
	for i := 0; i < 100; i++ {
		d := j.Next(3)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

type lockHeld struct{}

func (lockHeld) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestPipelineSkipsWhenLockHeld(t *testing.T) {
	risk := service.NewRiskManager(testBacktestConfig("").Risk, discard())
	p := New("SOLUSDT",
		feature.NewExtractor(feature.DefaultConfig(), nil),
		strategy.NewHeuristic(testStrategy()),
		risk,
		executor.NewSimExecutor(executor.FillSpreadCapture, risk),
		ledger.New(), nil, discard())
	p.SetLockManager(lockHeld{}, time.Second)

	res := p.Step(context.Background(), domain.ExecContext{Snapshot: liveSnap(0)})
	assert.Equal(t, OutcomeLocked, res.Outcome)
	assert.Zero(t, p.Ledger().Len())
	assert.True(t, risk.State().CurrentPosition.IsZero())
}
