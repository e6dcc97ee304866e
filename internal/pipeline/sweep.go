package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hftbot/internal/dataset"
	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/executor"
	"github.com/alanyoungcy/hftbot/internal/feature"
	"github.com/alanyoungcy/hftbot/internal/strategy"
)

// Variant is one configuration compared by a sweep.
type Variant struct {
	Name      string
	Strategy  strategy.Config
	Feature   feature.Config
	Imbalance string
	FillModel executor.FillModel
}

// Sweeper runs several backtest variants over the same rows. Variants share
// nothing mutable: each builds its own generator, risk state and ledger.
type Sweeper struct {
	base     BacktestConfig
	registry *strategy.Registry
	scorer   domain.ScoringService
	logger   *slog.Logger
	limit    int
}

// NewSweeper creates a Sweeper. scorer may be nil when no variant uses a
// probability generator.
func NewSweeper(base BacktestConfig, registry *strategy.Registry, scorer domain.ScoringService, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		base:     base,
		registry: registry,
		scorer:   scorer,
		logger:   logger.With(slog.String("component", "sweeper")),
		limit:    runtime.GOMAXPROCS(0),
	}
}

// Run executes every variant in parallel and returns results in variant
// order. A variant that cannot be built fails the whole sweep before any
// work starts.
func (s *Sweeper) Run(ctx context.Context, rows []dataset.Row, variants []Variant) ([]*BacktestResult, error) {
	testers := make([]*Backtester, len(variants))
	for i, v := range variants {
		bt, err := s.build(v)
		if err != nil {
			return nil, fmt.Errorf("pipeline: sweep variant %q: %w", v.Name, err)
		}
		testers[i] = bt
	}

	results := make([]*BacktestResult, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)

	for i := range variants {
		g.Go(func() error {
			res, err := testers[i].Run(gctx, rows)
			if err != nil {
				return fmt.Errorf("variant %q: %w", variants[i].Name, err)
			}
			res.Name = variants[i].Name
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: sweep: %w", err)
	}

	for _, r := range results {
		attrs := []any{
			slog.String("variant", r.Name),
			slog.String("generator", r.Generator),
			slog.String("fill_model", string(r.FillModel)),
			slog.Int("trades", r.Counters.Trades),
		}
		if !r.NoTrades {
			attrs = append(attrs,
				slog.Float64("return_pct", r.Metrics.ReturnPct),
				slog.Float64("sharpe", r.Metrics.SharpeRatio),
				slog.Float64("max_drawdown", r.Metrics.MaxDrawdown),
			)
		}
		s.logger.InfoContext(ctx, "sweep variant result", attrs...)
	}
	return results, nil
}

func (s *Sweeper) build(v Variant) (*Backtester, error) {
	imb, err := feature.NewImbalanceStrategy(v.Imbalance)
	if err != nil {
		return nil, err
	}
	ext := feature.NewExtractor(v.Feature, imb)

	if s.scorer != nil && v.Strategy.Name == strategy.NameProbability && s.scorer.Arity() != ext.Set().Arity() {
		return nil, fmt.Errorf("scorer arity %d, feature set %s arity %d: %w",
			s.scorer.Arity(), ext.Set(), ext.Set().Arity(), domain.ErrFeatureArity)
	}

	gen, err := s.registry.Build(v.Strategy, s.scorer)
	if err != nil {
		return nil, err
	}

	cfg := s.base
	if v.FillModel != "" {
		cfg.FillModel = v.FillModel
	}
	return NewBacktester(cfg, ext, gen, nil, s.logger), nil
}
