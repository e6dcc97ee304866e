package executor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

var (
	errEmptySide   = errors.New("snapshot has an empty side")
	errNoNextTick  = errors.New("next snapshot required")
	errNonPositive = errors.New("non-positive quantity")
)

// SimExecutor fills signals against recorded snapshots. It never touches the
// wall clock, so replaying the same snapshots gives the same trades.
type SimExecutor struct {
	model FillModel
	risk  FillApplier
}

var _ Executor = (*SimExecutor)(nil)

// NewSimExecutor creates a simulator using one fill model.
func NewSimExecutor(model FillModel, risk FillApplier) *SimExecutor {
	return &SimExecutor{model: model, risk: risk}
}

// Model returns the configured fill model.
func (s *SimExecutor) Model() FillModel { return s.model }

func (s *SimExecutor) Execute(_ context.Context, sig domain.Signal, ec domain.ExecContext) (domain.Trade, error) {
	if !sig.Quantity.IsPositive() {
		return domain.Trade{}, execErr("simulate", errNonPositive)
	}
	snap := ec.Snapshot
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return domain.Trade{}, execErr("simulate", errEmptySide)
	}
	bid, ask := snap.BestBid(), snap.BestAsk()

	price := ask
	if sig.Side == domain.SideSell {
		price = bid
	}

	var profit decimal.Decimal
	switch s.model {
	case FillSpreadCapture:
		profit = ask.Sub(bid).Mul(sig.Quantity)
	case FillNextTick:
		next := ec.Next
		if next == nil {
			return domain.Trade{}, execErr("simulate", errNoNextTick)
		}
		if len(next.Bids) == 0 || len(next.Asks) == 0 {
			return domain.Trade{}, execErr("simulate", errEmptySide)
		}
		if sig.Side == domain.SideBuy {
			profit = next.BestBid().Sub(price).Mul(sig.Quantity)
		} else {
			profit = price.Sub(next.BestAsk()).Mul(sig.Quantity)
		}
	default:
		return domain.Trade{}, execErr("simulate", errors.New("unknown fill model "+string(s.model)))
	}

	trade := domain.Trade{
		Timestamp: snap.Timestamp,
		Side:      sig.Side,
		Price:     price,
		Amount:    sig.Quantity,
		Profit:    profit,
	}
	s.risk.ApplyFill(trade)
	return trade, nil
}
