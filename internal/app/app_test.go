package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hftbot/internal/config"
	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/executor"
	"github.com/alanyoungcy/hftbot/internal/strategy"
)

type fixedScorer struct{ arity int }

func (s fixedScorer) Score(context.Context, []float64) (float64, error) { return 0.9, nil }
func (s fixedScorer) Arity() int                                        { return s.arity }

type nopLimiter struct{}

func (nopLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) { return true, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildComponentsHeuristic(t *testing.T) {
	cfg := config.Defaults()
	comps, err := buildComponents(&cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, strategy.NameHeuristic, comps.generator.Name())
	assert.Equal(t, domain.FeatureSetBasic, comps.extractor.Set())
}

func TestBuildComponentsArityMismatch(t *testing.T) {
	cfg := config.Defaults()
	cfg.Signal.Generator = strategy.NameProbability

	_, err := buildComponents(&cfg, nil)
	require.Error(t, err)

	_, err = buildComponents(&cfg, fixedScorer{arity: 7})
	assert.ErrorIs(t, err, domain.ErrFeatureArity)

	comps, err := buildComponents(&cfg, fixedScorer{arity: 4})
	require.NoError(t, err)
	assert.Equal(t, strategy.NameProbability, comps.generator.Name())
}

func TestSweepVariantsInherit(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backtest.Variants = []config.VariantConfig{
		{Name: "base"},
		{Name: "wide", MinImbalance: 0.3, FeatureSet: "extended", FillModel: "next_tick"},
	}
	vs, err := sweepVariants(&cfg)
	require.NoError(t, err)
	require.Len(t, vs, 2)

	assert.InDelta(t, 0.15, vs[0].Strategy.MinImbalance, 1e-12)
	assert.Equal(t, executor.FillModel(""), vs[0].FillModel)
	assert.Equal(t, "volume_ratio", vs[0].Imbalance)

	assert.InDelta(t, 0.3, vs[1].Strategy.MinImbalance, 1e-12)
	assert.Equal(t, domain.FeatureSetExtended, vs[1].Feature.Set)
	assert.Equal(t, executor.FillNextTick, vs[1].FillModel)
	assert.Equal(t, strategy.NameHeuristic, vs[1].Strategy.Name)
}

func TestOrderLimit(t *testing.T) {
	cfg := config.Defaults()
	assert.Nil(t, orderLimit(&cfg, nil))

	lim := orderLimit(&cfg, nopLimiter{})
	require.NotNil(t, lim)
	assert.Equal(t, 10, lim.Max)
	assert.Equal(t, time.Second, lim.Window)
}

func TestLiveBackoffFromConfig(t *testing.T) {
	cfg := config.Defaults()
	b := liveBackoff(&cfg)
	assert.Equal(t, 250*time.Millisecond, b.Min)
	assert.Equal(t, 30*time.Second, b.Max)
	assert.InDelta(t, 2.0, b.Factor, 1e-12)
	assert.InDelta(t, 0.2, b.Jitter, 1e-12)

	cfg.Live.BackoffMin.Duration = time.Second
	cfg.Live.BackoffFactor = 3
	cfg.Live.BackoffJitter = 0
	b = liveBackoff(&cfg)
	assert.Equal(t, time.Second, b.Min)
	assert.InDelta(t, 3.0, b.Factor, 1e-12)
	assert.Zero(t, b.Jitter)
	assert.Equal(t, 3*time.Second, b.Next(2))
}

func TestWithVariant(t *testing.T) {
	assert.Equal(t, "data/report.txt", withVariant("data/report.txt", ""))
	assert.Equal(t, "data/report.tight.txt", withVariant("data/report.txt", "tight"))
}

const sampleDataset = `timestamp,order_book
2024-03-01T00:00:00Z,"{""bids"": [[100.0, 5.0], [99.9, 4.0]], ""asks"": [[100.1, 1.0], [100.2, 1.0]]}"
2024-03-01T00:00:01Z,"{""bids"": [[100.0, 1.0], [99.9, 1.0]], ""asks"": [[100.1, 6.0], [100.2, 5.0]]}"
2024-03-01T00:00:02Z,"{""bids"": [[100.0, 5.0], [99.9, 5.0]], ""asks"": [[100.1, 1.0], [100.2, 1.0]]}"
`

func TestBacktestModeWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "book.csv")
	require.NoError(t, os.WriteFile(data, []byte(sampleDataset), 0o600))

	cfg := config.Defaults()
	cfg.SQLite.Path = filepath.Join(dir, "hftbot.db")
	cfg.Backtest.DataPath = data
	cfg.Backtest.LedgerPath = filepath.Join(dir, "out", "trades.csv")
	cfg.Backtest.ReportPath = filepath.Join(dir, "out", "report.txt")
	cfg.Backtest.MetricsPath = filepath.Join(dir, "out", "metrics.yaml")

	a := New(&cfg, testLogger())
	t.Cleanup(a.Close)
	require.NoError(t, a.Run(context.Background()))

	ledgerCSV, err := os.ReadFile(cfg.Backtest.LedgerPath)
	require.NoError(t, err)
	assert.Contains(t, string(ledgerCSV), "timestamp,side,price,amount,profit")
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func TestBacktestModeLogsReportWriteFailure(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "book.csv")
	require.NoError(t, os.WriteFile(data, []byte(sampleDataset), 0o600))

	cfg := config.Defaults()
	cfg.SQLite.Path = filepath.Join(dir, "hftbot.db")
	cfg.Backtest.DataPath = data
	cfg.Backtest.LedgerPath = filepath.Join(dir, "out", "trades.csv")
	cfg.Backtest.ReportPath = filepath.Join(dir, "out", "report.txt")
	cfg.Backtest.MetricsPath = filepath.Join(dir, "out", "metrics.yaml")

	var logs bytes.Buffer
	a := New(&cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	a.out = brokenWriter{}
	t.Cleanup(a.Close)

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, logs.String(), "metrics report write failed")
	assert.Contains(t, logs.String(), "stdout closed")
	assert.FileExists(t, cfg.Backtest.ReportPath)
}
