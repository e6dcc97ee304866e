package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Run describes one trading session or backtest run.
type Run struct {
	ID             string
	Mode           string
	Symbol         string
	Generator      string
	FillModel      string
	InitialBalance float64
	StartedAt      time.Time
	FinishedAt     *time.Time
	Metrics        map[string]float64
	NoTrades       bool
}

// RunStore persists run headers and their final metrics.
type RunStore interface {
	Create(ctx context.Context, run Run) error
	Finish(ctx context.Context, id string, finishedAt time.Time, metrics map[string]float64, noTrades bool) error
	GetByID(ctx context.Context, id string) (Run, error)
}

// LedgerStore persists ledger trades for a run.
type LedgerStore interface {
	InsertBatch(ctx context.Context, runID string, trades []Trade) error
	Append(ctx context.Context, runID string, seq int, trade Trade) error
	ListByRun(ctx context.Context, runID string) ([]Trade, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	RunID     string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, runID, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// TrainingSample is a labeled feature tuple collected after a fill, for an
// external model trainer.
type TrainingSample struct {
	RunID      string
	Symbol     string
	Timestamp  time.Time
	FeatureSet FeatureSet
	Features   []float64
	Label      int
	Profit     float64
}

// SampleStore persists training samples.
type SampleStore interface {
	Insert(ctx context.Context, sample TrainingSample) error
	Count(ctx context.Context, featureSet FeatureSet) (int64, error)
}
