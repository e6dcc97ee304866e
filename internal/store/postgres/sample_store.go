package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// SampleStore implements domain.SampleStore on the training_samples table.
type SampleStore struct {
	pool *pgxpool.Pool
}

var _ domain.SampleStore = (*SampleStore)(nil)

// NewSampleStore creates a SampleStore backed by pool.
func NewSampleStore(pool *pgxpool.Pool) *SampleStore {
	return &SampleStore{pool: pool}
}

// Insert stores one labeled sample.
func (s *SampleStore) Insert(ctx context.Context, sample domain.TrainingSample) error {
	const query = `
		INSERT INTO training_samples (run_id, symbol, timestamp, feature_set, features, label, profit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		sample.RunID, sample.Symbol, sample.Timestamp, string(sample.FeatureSet),
		sample.Features, int16(sample.Label), sample.Profit)
	if err != nil {
		return fmt.Errorf("postgres: insert training sample: %w", err)
	}
	return nil
}

// Count returns the number of samples for a feature set.
func (s *SampleStore) Count(ctx context.Context, featureSet domain.FeatureSet) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM training_samples WHERE feature_set = $1`, string(featureSet)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count training samples: %w", err)
	}
	return n, nil
}
