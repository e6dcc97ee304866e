// Package executor turns approved signals into trades, either against a live
// venue or by simulating fills on the snapshot sequence.
package executor

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Executor fills an approved signal. On success the resulting trade has
// already been applied to risk state exactly once. Failures are
// *domain.ExecutionError and leave risk state untouched.
type Executor interface {
	Execute(ctx context.Context, sig domain.Signal, ec domain.ExecContext) (domain.Trade, error)
}

// FillApplier receives every executed trade. It is implemented by
// service.RiskManager.
type FillApplier interface {
	ApplyFill(trade domain.Trade) domain.RiskState
}

// FillModel selects how the simulator prices fills.
type FillModel string

const (
	// FillSpreadCapture fills at the opposite best price of the same
	// snapshot and books the full spread as profit.
	FillSpreadCapture FillModel = "spread_capture"
	// FillNextTick fills at the opposite best price and realizes PnL
	// against the next snapshot.
	FillNextTick FillModel = "next_tick"
)

// ParseFillModel validates a configured fill model name.
func ParseFillModel(s string) (FillModel, error) {
	switch FillModel(s) {
	case FillSpreadCapture, FillNextTick:
		return FillModel(s), nil
	default:
		return "", fmt.Errorf("executor: unknown fill model %q", s)
	}
}

// NeedsNext reports whether the model requires ExecContext.Next.
func (m FillModel) NeedsNext() bool { return m == FillNextTick }

func execErr(op string, err error) error {
	return &domain.ExecutionError{Op: op, Err: err}
}
