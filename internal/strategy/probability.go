package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// ProbabilityGated combines imbalance with a model confidence and refuses
// to signal on wide books.
type ProbabilityGated struct {
	cfg    Config
	scorer domain.ScoringService
}

var _ Generator = (*ProbabilityGated)(nil)

// NewProbabilityGated creates the generator. scorer may be nil only when
// every Generate call supplies a confidence.
func NewProbabilityGated(cfg Config, scorer domain.ScoringService) *ProbabilityGated {
	return &ProbabilityGated{cfg: cfg, scorer: scorer}
}

func (p *ProbabilityGated) Name() string { return NameProbability }

// Generate applies the spread gate first, then requires both the imbalance
// and the confidence to clear their thresholds.
func (p *ProbabilityGated) Generate(ctx context.Context, fv domain.FeatureVector, confidence *float64) (*domain.Signal, error) {
	if fv.Spread > p.cfg.SpreadThreshold {
		return nil, nil
	}

	conf, err := p.confidence(ctx, fv, confidence)
	if err != nil {
		return nil, err
	}
	if !(conf > p.cfg.ModelConfidence) {
		return nil, nil
	}

	switch {
	case fv.Imbalance > p.cfg.MinImbalance:
		return p.cfg.signal(NameProbability, domain.SideBuy, conf, fv.Imbalance), nil
	case fv.Imbalance < -p.cfg.MinImbalance:
		return p.cfg.signal(NameProbability, domain.SideSell, conf, fv.Imbalance), nil
	default:
		return nil, nil
	}
}

func (p *ProbabilityGated) confidence(ctx context.Context, fv domain.FeatureVector, supplied *float64) (float64, error) {
	var conf float64
	if supplied != nil {
		conf = *supplied
	} else {
		if p.scorer == nil {
			return 0, &domain.ScoringServiceError{Err: errors.New("no scoring service configured")}
		}
		score, err := p.scorer.Score(ctx, fv.Values())
		if err != nil {
			var sse *domain.ScoringServiceError
			if errors.As(err, &sse) {
				return 0, err
			}
			return 0, &domain.ScoringServiceError{Err: err}
		}
		conf = score
	}
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return 0, &domain.ScoringServiceError{Err: fmt.Errorf("confidence %v outside [0,1]", conf)}
	}
	return conf, nil
}
