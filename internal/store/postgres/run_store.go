package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// RunStore implements domain.RunStore.
type RunStore struct {
	pool *pgxpool.Pool
}

var _ domain.RunStore = (*RunStore)(nil)

// NewRunStore creates a RunStore backed by pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Create inserts the run header.
func (s *RunStore) Create(ctx context.Context, run domain.Run) error {
	const query = `
		INSERT INTO runs (id, mode, symbol, generator, fill_model, initial_balance, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		run.ID, run.Mode, run.Symbol, run.Generator, run.FillModel, run.InitialBalance, run.StartedAt)
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", run.ID, err)
	}
	return nil
}

// Finish stores the end time and final metrics of a run.
func (s *RunStore) Finish(ctx context.Context, id string, finishedAt time.Time, metrics map[string]float64, noTrades bool) error {
	metricsJSON, err := encodeMetrics(metrics)
	if err != nil {
		return fmt.Errorf("postgres: marshal run metrics: %w", err)
	}

	const query = `UPDATE runs SET finished_at = $2, metrics = $3, no_trades = $4 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, finishedAt, metricsJSON, noTrades)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finish run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns a run or domain.ErrNotFound.
func (s *RunStore) GetByID(ctx context.Context, id string) (domain.Run, error) {
	const query = `
		SELECT id, mode, symbol, generator, fill_model, initial_balance::float8,
		       started_at, finished_at, metrics, no_trades
		FROM runs WHERE id = $1`

	var run domain.Run
	var metricsJSON []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Mode, &run.Symbol, &run.Generator, &run.FillModel, &run.InitialBalance,
		&run.StartedAt, &run.FinishedAt, &metricsJSON, &run.NoTrades,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("postgres: get run %s: %w", id, err)
	}
	if run.Metrics, err = decodeMetrics(metricsJSON); err != nil {
		return domain.Run{}, fmt.Errorf("postgres: unmarshal run metrics: %w", err)
	}
	return run, nil
}
