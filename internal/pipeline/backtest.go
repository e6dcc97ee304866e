package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hftbot/internal/book"
	"github.com/alanyoungcy/hftbot/internal/dataset"
	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/executor"
	"github.com/alanyoungcy/hftbot/internal/feature"
	"github.com/alanyoungcy/hftbot/internal/ledger"
	"github.com/alanyoungcy/hftbot/internal/metrics"
	"github.com/alanyoungcy/hftbot/internal/service"
	"github.com/alanyoungcy/hftbot/internal/strategy"
)

// BacktestConfig holds the per-run settings shared by every variant.
type BacktestConfig struct {
	Symbol         string
	InitialBalance float64
	Risk           service.RiskConfig
	FillModel      executor.FillModel
}

// Counters tallies row and snapshot outcomes for one run.
type Counters struct {
	Rows          int `yaml:"rows"`
	Malformed     int `yaml:"malformed"`
	OutOfOrder    int `yaml:"out_of_order"`
	Snapshots     int `yaml:"snapshots"`
	NoSignal      int `yaml:"no_signal"`
	FeatureErrors int `yaml:"feature_errors"`
	ScoringErrors int `yaml:"scoring_errors"`
	Rejected      int `yaml:"rejected"`
	ExecErrors    int `yaml:"exec_errors"`
	NotFilled     int `yaml:"not_filled"`
	Trades        int `yaml:"trades"`
}

func (c *Counters) add(o Outcome) {
	switch o {
	case OutcomeNoSignal:
		c.NoSignal++
	case OutcomeFeatureError:
		c.FeatureErrors++
	case OutcomeScoringError:
		c.ScoringErrors++
	case OutcomeRejected, OutcomeLocked:
		c.Rejected++
	case OutcomeExecError:
		c.ExecErrors++
	case OutcomeNotFilled:
		c.NotFilled++
	case OutcomeTraded:
		c.Trades++
	}
}

// BacktestResult is the outcome of one run. Metrics is zero when NoTrades
// is set.
type BacktestResult struct {
	Name       string
	Generator  string
	FillModel  executor.FillModel
	Ledger     *ledger.Ledger
	Metrics    metrics.Metrics
	NoTrades   bool
	Counters   Counters
	FinalState domain.RiskState
}

// Backtester replays historical rows through a fresh Pipeline per run.
// A run uses no wall clock, randomness or goroutines, so identical input
// produces an identical ledger.
type Backtester struct {
	cfg        BacktestConfig
	normalizer *book.Normalizer
	extractor  *feature.Extractor
	generator  strategy.Generator
	observer   Observer
	logger     *slog.Logger
}

// NewBacktester creates a Backtester. observer may be nil.
func NewBacktester(cfg BacktestConfig, extractor *feature.Extractor, generator strategy.Generator, observer Observer, logger *slog.Logger) *Backtester {
	return &Backtester{
		cfg:        cfg,
		normalizer: book.NewNormalizer(cfg.Symbol),
		extractor:  extractor,
		generator:  generator,
		observer:   observer,
		logger:     logger.With(slog.String("component", "backtester")),
	}
}

// Run normalizes rows, walks the valid snapshot sequence and computes
// metrics. Per-row failures are counted and skipped; only context
// cancellation aborts the run.
func (b *Backtester) Run(ctx context.Context, rows []dataset.Row) (*BacktestResult, error) {
	res := &BacktestResult{
		Generator: b.generator.Name(),
		FillModel: b.cfg.FillModel,
		Ledger:    ledger.New(),
	}
	res.Counters.Rows = len(rows)

	snaps := b.normalize(ctx, rows, &res.Counters)
	res.Counters.Snapshots = len(snaps)

	risk := service.NewRiskManager(b.cfg.Risk, b.logger)
	sim := executor.NewSimExecutor(b.cfg.FillModel, risk)
	p := New(b.cfg.Symbol, b.extractor, b.generator, risk, sim, res.Ledger, b.observer, b.logger)

	for i := range snaps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline: backtest: %w", err)
		}
		ec := domain.ExecContext{Snapshot: snaps[i]}
		if i+1 < len(snaps) {
			ec.Next = &snaps[i+1]
		}
		step := p.Step(ctx, ec)
		res.Counters.add(step.Outcome)
	}

	res.FinalState = risk.State()

	m, err := metrics.Compute(res.Ledger.Trades(), b.cfg.InitialBalance)
	switch {
	case errors.Is(err, metrics.ErrNoTrades):
		res.NoTrades = true
		b.logger.InfoContext(ctx, "backtest produced no trades",
			slog.String("generator", res.Generator),
			slog.Int("snapshots", res.Counters.Snapshots),
		)
	case err != nil:
		return nil, fmt.Errorf("pipeline: metrics: %w", err)
	default:
		res.Metrics = m
	}

	b.logger.InfoContext(ctx, "backtest complete",
		slog.String("generator", res.Generator),
		slog.String("fill_model", string(res.FillModel)),
		slog.Int("rows", res.Counters.Rows),
		slog.Int("malformed", res.Counters.Malformed),
		slog.Int("out_of_order", res.Counters.OutOfOrder),
		slog.Int("trades", res.Counters.Trades),
		slog.Int("rejected", res.Counters.Rejected),
	)
	return res, nil
}

// normalize turns rows into an ordered snapshot sequence. A payload without
// its own timestamp takes the row's timestamp column. Rows older than the
// previous valid snapshot are dropped.
func (b *Backtester) normalize(ctx context.Context, rows []dataset.Row, c *Counters) []domain.OrderBookSnapshot {
	snaps := make([]domain.OrderBookSnapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := b.normalizeRow(row)
		if err != nil {
			c.Malformed++
			b.logger.WarnContext(ctx, "skipping malformed row",
				slog.Int("line", row.Line),
				slog.String("error", err.Error()),
			)
			continue
		}
		if n := len(snaps); n > 0 && snap.Timestamp.Before(snaps[n-1].Timestamp) {
			c.OutOfOrder++
			b.logger.WarnContext(ctx, "skipping out-of-order row",
				slog.Int("line", row.Line),
				slog.Time("ts", snap.Timestamp),
				slog.Time("prev_ts", snaps[n-1].Timestamp),
			)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

func (b *Backtester) normalizeRow(row dataset.Row) (domain.OrderBookSnapshot, error) {
	if row.OrderBook == "" {
		return domain.OrderBookSnapshot{}, &domain.MalformedBookError{Reason: "empty order_book column"}
	}
	var raw domain.RawSnapshot
	if err := json.Unmarshal([]byte(row.OrderBook), &raw); err != nil {
		return domain.OrderBookSnapshot{}, &domain.MalformedBookError{Reason: "decode: " + err.Error()}
	}
	if raw.Timestamp == "" {
		raw.Timestamp = row.Timestamp
	}
	return b.normalizer.Normalize(raw)
}
