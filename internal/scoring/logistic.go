// Package scoring provides ScoringService implementations: a local logistic
// model read from a JSON weights file, an HTTP client for a remote model
// server, and a hot-reloading wrapper that picks up weights published by an
// external trainer.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// ModelFile is the on-disk weights format written by the trainer.
type ModelFile struct {
	FeatureSet string    `json:"feature_set"`
	Weights    []float64 `json:"weights"`
	Bias       float64   `json:"bias"`
	Means      []float64 `json:"means,omitempty"`
	Scales     []float64 `json:"scales,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// Logistic scores with sigmoid(w·z + b), where z is the optionally
// standardized feature tuple.
type Logistic struct {
	model ModelFile
}

var _ domain.ScoringService = (*Logistic)(nil)

// NewLogistic validates m and returns a model.
func NewLogistic(m ModelFile) (*Logistic, error) {
	if len(m.Weights) == 0 {
		return nil, errors.New("scoring: model has no weights")
	}
	if len(m.Means) != 0 && len(m.Means) != len(m.Weights) {
		return nil, fmt.Errorf("scoring: %d means for %d weights", len(m.Means), len(m.Weights))
	}
	if len(m.Scales) != 0 && len(m.Scales) != len(m.Weights) {
		return nil, fmt.Errorf("scoring: %d scales for %d weights", len(m.Scales), len(m.Weights))
	}
	if m.FeatureSet != "" {
		fs, err := domain.ParseFeatureSet(m.FeatureSet)
		if err != nil {
			return nil, fmt.Errorf("scoring: %w", err)
		}
		if fs.Arity() != len(m.Weights) {
			return nil, fmt.Errorf("scoring: feature set %s wants %d weights, got %d: %w",
				fs, fs.Arity(), len(m.Weights), domain.ErrFeatureArity)
		}
	}
	return &Logistic{model: m}, nil
}

// DecodeLogistic reads a JSON model file.
func DecodeLogistic(r io.Reader) (*Logistic, error) {
	var m ModelFile
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("scoring: decode model: %w", err)
	}
	return NewLogistic(m)
}

// Arity returns the number of inputs the model expects.
func (l *Logistic) Arity() int { return len(l.model.Weights) }

// Version returns the trainer-assigned version string, if any.
func (l *Logistic) Version() string { return l.model.Version }

// Score returns the model probability for features.
func (l *Logistic) Score(_ context.Context, features []float64) (float64, error) {
	if len(features) != len(l.model.Weights) {
		return 0, &domain.ScoringServiceError{
			Err: fmt.Errorf("got %d features, want %d: %w", len(features), len(l.model.Weights), domain.ErrFeatureArity),
		}
	}

	z := l.model.Bias
	for i, x := range features {
		if len(l.model.Means) > 0 {
			x -= l.model.Means[i]
		}
		if len(l.model.Scales) > 0 && l.model.Scales[i] != 0 {
			x /= l.model.Scales[i]
		}
		z += l.model.Weights[i] * x
	}
	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) {
		return 0, &domain.ScoringServiceError{Err: errors.New("model produced NaN")}
	}
	return p, nil
}
