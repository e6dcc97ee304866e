package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "hftbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	started := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, domain.Run{
		ID: "run-1", Mode: "backtest", Symbol: "SOLUSDT", Generator: "heuristic",
		FillModel: "optimistic", InitialBalance: 10000, StartedAt: started,
	}))

	finished := started.Add(time.Minute)
	require.NoError(t, s.Finish(ctx, "run-1", finished, map[string]float64{
		"final_balance": 10001.5,
		"profit_factor": math.Inf(1),
	}, false))

	run, err := s.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "heuristic", run.Generator)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.FinishedAt.Equal(finished))
	assert.InDelta(t, 10001.5, run.Metrics["final_balance"], 1e-9)
	assert.True(t, math.IsInf(run.Metrics["profit_factor"], 1))

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.Finish(ctx, "missing", finished, nil, true), domain.ErrNotFound)
}

func TestLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	trades := []domain.Trade{
		{Timestamp: ts, Side: domain.SideBuy, Price: decimal.RequireFromString("101.25"), Amount: decimal.RequireFromString("0.01"), Profit: decimal.RequireFromString("0.0125")},
		{Timestamp: ts.Add(time.Second), Side: domain.SideSell, Price: decimal.RequireFromString("100"), Amount: decimal.RequireFromString("0.01"), Profit: decimal.RequireFromString("-0.003")},
	}
	require.NoError(t, s.InsertBatch(ctx, "run-1", trades))
	// Re-inserting the same sequence numbers is a no-op.
	require.NoError(t, s.Append(ctx, "run-1", 1, trades[0]))
	require.NoError(t, s.Append(ctx, "run-1", 2, trades[0]))

	got, err := s.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, domain.SideSell, got[1].Side)
	assert.True(t, got[1].Profit.Equal(decimal.RequireFromString("-0.003")))
	assert.True(t, got[0].Timestamp.Equal(ts))

	empty, err := s.ListByRun(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAuditAndSamples(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.Log(ctx, "run-1", "risk_rejected", map[string]any{"reason": "max_position"}))
	require.NoError(t, s.Log(ctx, "run-1", "run_finished", map[string]any{"trades": 3}))

	entries, err := s.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run_finished", entries[0].Event)
	assert.InDelta(t, 3, entries[0].Detail["trades"], 1e-9)

	sample := domain.TrainingSample{
		RunID: "run-1", Symbol: "SOLUSDT", Timestamp: time.Now().UTC(),
		FeatureSet: domain.FeatureSetBasic, Features: []float64{0.2, 0.1, 5, 3}, Label: 1, Profit: 0.02,
	}
	require.NoError(t, s.Insert(ctx, sample))
	require.NoError(t, s.Insert(ctx, sample))

	n, err := s.Count(ctx, domain.FeatureSetBasic)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
