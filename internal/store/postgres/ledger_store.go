package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// LedgerStore implements domain.LedgerStore. Decimals travel as text so no
// precision is lost in either direction.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a LedgerStore backed by pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const insertLedgerTrade = `
	INSERT INTO ledger_trades (run_id, seq, timestamp, side, price, amount, profit)
	VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7::text::numeric)
	ON CONFLICT (run_id, seq) DO NOTHING`

func ledgerArgs(runID string, seq int, t domain.Trade) []any {
	return []any{runID, seq, t.Timestamp, string(t.Side), t.Price.String(), t.Amount.String(), t.Profit.String()}
}

// InsertBatch writes a whole ledger with sequence numbers 0..n-1 in one
// round trip. Re-inserting a run is a no-op.
func (s *LedgerStore) InsertBatch(ctx context.Context, runID string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, t := range trades {
		batch.Queue(insertLedgerTrade, ledgerArgs(runID, i, t)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert ledger batch item %d: %w", i, err)
		}
	}
	return nil
}

// Append writes one trade as it happens.
func (s *LedgerStore) Append(ctx context.Context, runID string, seq int, trade domain.Trade) error {
	if _, err := s.pool.Exec(ctx, insertLedgerTrade, ledgerArgs(runID, seq, trade)...); err != nil {
		return fmt.Errorf("postgres: append ledger trade %s/%d: %w", runID, seq, err)
	}
	return nil
}

// ListByRun returns the ledger of a run in sequence order.
func (s *LedgerStore) ListByRun(ctx context.Context, runID string) ([]domain.Trade, error) {
	const query = `
		SELECT timestamp, side, price::text, amount::text, profit::text
		FROM ledger_trades WHERE run_id = $1 ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger %s: %w", runID, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, price, amount, profit string
		if err := rows.Scan(&t.Timestamp, &side, &price, &amount, &profit); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger trade: %w", err)
		}
		t.Side = domain.Side(side)
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: parse price: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("postgres: parse amount: %w", err)
		}
		if t.Profit, err = decimal.NewFromString(profit); err != nil {
			return nil, fmt.Errorf("postgres: parse profit: %w", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ledger rows: %w", err)
	}
	return trades, nil
}
