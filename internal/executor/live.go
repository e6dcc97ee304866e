package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// OrderLimit caps order placement through a shared rate limiter.
type OrderLimit struct {
	Limiter domain.RateLimiter
	Max     int
	Window  time.Duration
}

// LiveExecutor places immediate-or-cancel limit orders on a venue. Buys are
// priced at the best ask and sells at the best bid, fetched at call time, so
// the order crosses the spread. It does not retry; the caller owns backoff.
// An order that expires unfilled returns domain.ErrNotFilled.
type LiveExecutor struct {
	venue  domain.ExecutionVenue
	symbol string
	risk   FillApplier
	limit  *OrderLimit
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	position decimal.Decimal // signed quantity held
	avgEntry decimal.Decimal
}

var _ Executor = (*LiveExecutor)(nil)

// NewLiveExecutor creates a LiveExecutor. limit may be nil.
func NewLiveExecutor(venue domain.ExecutionVenue, symbol string, risk FillApplier, limit *OrderLimit, logger *slog.Logger) *LiveExecutor {
	return &LiveExecutor{
		venue:  venue,
		symbol: symbol,
		risk:   risk,
		limit:  limit,
		logger: logger.With(slog.String("component", "live_executor")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Execute ignores ec; live prices come from the venue.
func (e *LiveExecutor) Execute(ctx context.Context, sig domain.Signal, _ domain.ExecContext) (domain.Trade, error) {
	if !sig.Quantity.IsPositive() {
		return domain.Trade{}, execErr("place_order", errNonPositive)
	}

	if e.limit != nil && e.limit.Limiter != nil {
		ok, err := e.limit.Limiter.Allow(ctx, "orders:"+e.symbol, e.limit.Max, e.limit.Window)
		if err != nil {
			return domain.Trade{}, execErr("rate_limit", err)
		}
		if !ok {
			return domain.Trade{}, execErr("rate_limit", domain.ErrRateLimited)
		}
	}

	var (
		price decimal.Decimal
		err   error
	)
	if sig.Side == domain.SideBuy {
		price, err = e.venue.BestAsk(ctx, e.symbol)
	} else {
		price, err = e.venue.BestBid(ctx, e.symbol)
	}
	if err != nil {
		return domain.Trade{}, execErr("quote", err)
	}

	fill, err := e.venue.PlaceOrder(ctx, e.symbol, sig.Side, price, sig.Quantity)
	if err != nil {
		return domain.Trade{}, execErr("place_order", err)
	}
	if !fill.FilledAmount.IsPositive() {
		return domain.Trade{}, execErr("place_order", fmt.Errorf("order %s status %s: %w", fill.OrderID, fill.Status, domain.ErrNotFilled))
	}

	fillPrice := fill.Price
	if !fillPrice.IsPositive() {
		fillPrice = price
	}

	trade := domain.Trade{
		Timestamp: e.now(),
		Side:      sig.Side,
		Price:     fillPrice,
		Amount:    fill.FilledAmount,
		Profit:    e.realize(sig.Side, fillPrice, fill.FilledAmount),
	}
	e.risk.ApplyFill(trade)

	e.logger.InfoContext(ctx, "order filled",
		slog.String("order_id", fill.OrderID),
		slog.String("side", string(trade.Side)),
		slog.String("price", trade.Price.String()),
		slog.String("amount", trade.Amount.String()),
		slog.String("profit", trade.Profit.String()),
	)
	return trade, nil
}

// realize updates the average-cost position and returns the PnL realized by
// the part of the fill that reduces it.
func (e *LiveExecutor) realize(side domain.Side, price, amount decimal.Decimal) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()

	signed := amount.Mul(side.Sign())
	pos := e.position

	// Opening or extending.
	if pos.IsZero() || pos.Sign() == signed.Sign() {
		total := pos.Abs().Add(amount)
		e.avgEntry = pos.Abs().Mul(e.avgEntry).Add(amount.Mul(price)).Div(total)
		e.position = pos.Add(signed)
		return decimal.Zero
	}

	closing := decimal.Min(amount, pos.Abs())
	// Long positions profit when price > entry, shorts when price < entry.
	profit := price.Sub(e.avgEntry).Mul(closing).Mul(decimal.NewFromInt(int64(pos.Sign())))

	e.position = pos.Add(signed)
	switch {
	case e.position.IsZero():
		e.avgEntry = decimal.Zero
	case e.position.Sign() != pos.Sign():
		e.avgEntry = price
	}
	return profit
}
