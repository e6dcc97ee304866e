package app

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/hftbot/internal/config"
	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/executor"
	"github.com/alanyoungcy/hftbot/internal/feature"
	"github.com/alanyoungcy/hftbot/internal/pipeline"
	"github.com/alanyoungcy/hftbot/internal/service"
	"github.com/alanyoungcy/hftbot/internal/strategy"
)

func riskConfig(cfg *config.Config) (service.RiskConfig, error) {
	maxPos, maxLoss, err := cfg.Risk.Limits()
	if err != nil {
		return service.RiskConfig{}, err
	}
	return service.RiskConfig{MaxPosition: maxPos, MaxLoss: maxLoss}, nil
}

func strategyConfig(cfg *config.Config) (strategy.Config, error) {
	qty, err := cfg.Signal.Quantity()
	if err != nil {
		return strategy.Config{}, err
	}
	return strategy.Config{
		Name:            cfg.Signal.Generator,
		MinImbalance:    cfg.Signal.MinImbalance,
		SpreadThreshold: cfg.Signal.SpreadThreshold,
		ModelConfidence: cfg.Signal.ModelConfidence,
		ProfitTargetPct: cfg.Signal.ProfitTargetPct,
		StopLossPct:     cfg.Signal.StopLossPct,
		PositionSizePct: cfg.Signal.PositionSizePct,
		Quantity:        qty,
	}, nil
}

func featureConfig(cfg *config.Config) (feature.Config, error) {
	set, err := domain.ParseFeatureSet(cfg.Feature.Set)
	if err != nil {
		return feature.Config{}, err
	}
	return feature.Config{
		Set:            set,
		ImbalanceDepth: cfg.Feature.ImbalanceDepth,
		DepthLevels:    cfg.Feature.DepthLevels,
		LiquidityDepth: cfg.Feature.LiquidityDepth,
	}, nil
}

func backtestConfig(cfg *config.Config) (pipeline.BacktestConfig, error) {
	risk, err := riskConfig(cfg)
	if err != nil {
		return pipeline.BacktestConfig{}, err
	}
	fill, err := executor.ParseFillModel(cfg.Backtest.FillModel)
	if err != nil {
		return pipeline.BacktestConfig{}, err
	}
	return pipeline.BacktestConfig{
		Symbol:         cfg.Symbol,
		InitialBalance: cfg.Backtest.InitialBalance,
		Risk:           risk,
		FillModel:      fill,
	}, nil
}

// components is the extractor and generator pair for one configuration.
type components struct {
	extractor *feature.Extractor
	generator strategy.Generator
}

// buildComponents builds the extractor and generator. A probability
// generator whose scorer arity does not match the feature set is rejected
// here, before any snapshot is processed.
func buildComponents(cfg *config.Config, scorer domain.ScoringService) (components, error) {
	fc, err := featureConfig(cfg)
	if err != nil {
		return components{}, err
	}
	imb, err := feature.NewImbalanceStrategy(cfg.Feature.Imbalance)
	if err != nil {
		return components{}, err
	}
	ext := feature.NewExtractor(fc, imb)

	sc, err := strategyConfig(cfg)
	if err != nil {
		return components{}, err
	}
	if sc.Name == strategy.NameProbability {
		if scorer == nil {
			return components{}, fmt.Errorf("app: generator %q needs a scoring service", sc.Name)
		}
		if scorer.Arity() != fc.Set.Arity() {
			return components{}, fmt.Errorf("app: scorer arity %d, feature set %s arity %d: %w",
				scorer.Arity(), fc.Set, fc.Set.Arity(), domain.ErrFeatureArity)
		}
	}
	gen, err := strategy.NewRegistry().Build(sc, scorer)
	if err != nil {
		return components{}, err
	}
	return components{extractor: ext, generator: gen}, nil
}

// sweepVariants turns [[backtest.variants]] into pipeline variants. Zero
// fields inherit the base configuration.
func sweepVariants(cfg *config.Config) ([]pipeline.Variant, error) {
	baseStrategy, err := strategyConfig(cfg)
	if err != nil {
		return nil, err
	}
	baseFeature, err := featureConfig(cfg)
	if err != nil {
		return nil, err
	}

	variants := make([]pipeline.Variant, 0, len(cfg.Backtest.Variants))
	for _, vc := range cfg.Backtest.Variants {
		v := pipeline.Variant{
			Name:      vc.Name,
			Strategy:  baseStrategy,
			Feature:   baseFeature,
			Imbalance: cfg.Feature.Imbalance,
		}
		if vc.Generator != "" {
			v.Strategy.Name = vc.Generator
		}
		if vc.MinImbalance > 0 {
			v.Strategy.MinImbalance = vc.MinImbalance
		}
		if vc.Confidence > 0 {
			v.Strategy.ModelConfidence = vc.Confidence
		}
		if vc.FeatureSet != "" {
			set, err := domain.ParseFeatureSet(vc.FeatureSet)
			if err != nil {
				return nil, fmt.Errorf("app: variant %q: %w", vc.Name, err)
			}
			v.Feature.Set = set
		}
		if vc.Imbalance != "" {
			v.Imbalance = vc.Imbalance
		}
		if vc.FillModel != "" {
			fill, err := executor.ParseFillModel(vc.FillModel)
			if err != nil {
				return nil, fmt.Errorf("app: variant %q: %w", vc.Name, err)
			}
			v.FillModel = fill
		}
		variants = append(variants, v)
	}
	return variants, nil
}

func liveBackoff(cfg *config.Config) pipeline.Backoff {
	b := pipeline.DefaultBackoff()
	if cfg.Live.BackoffMin.Duration > 0 {
		b.Min = cfg.Live.BackoffMin.Duration
	}
	if cfg.Live.BackoffMax.Duration > 0 {
		b.Max = cfg.Live.BackoffMax.Duration
	}
	if cfg.Live.BackoffFactor > 1 {
		b.Factor = cfg.Live.BackoffFactor
	}
	if cfg.Live.BackoffJitter >= 0 && cfg.Live.BackoffJitter < 1 {
		b.Jitter = cfg.Live.BackoffJitter
	}
	return b
}

func orderLimit(cfg *config.Config, limiter domain.RateLimiter) *executor.OrderLimit {
	if limiter == nil || cfg.Venue.MaxOrders <= 0 {
		return nil
	}
	window := cfg.Venue.OrderWindow.Duration
	if window <= 0 {
		window = time.Second
	}
	return &executor.OrderLimit{Limiter: limiter, Max: cfg.Venue.MaxOrders, Window: window}
}
