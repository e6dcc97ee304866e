package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func book(bid, ask string) domain.OrderBookSnapshot {
	return domain.OrderBookSnapshot{
		Symbol:    "SOLUSDT",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Bids:      []domain.PriceLevel{{Price: dec(bid), Volume: dec("5")}},
		Asks:      []domain.PriceLevel{{Price: dec(ask), Volume: dec("5")}},
	}
}

type recordingRisk struct {
	fills []domain.Trade
}

func (r *recordingRisk) ApplyFill(t domain.Trade) domain.RiskState {
	r.fills = append(r.fills, t)
	return domain.RiskState{}
}

func buy(qty string) domain.Signal  { return domain.Signal{Side: domain.SideBuy, Quantity: dec(qty)} }
func sell(qty string) domain.Signal { return domain.Signal{Side: domain.SideSell, Quantity: dec(qty)} }

func TestSpreadCapture(t *testing.T) {
	risk := &recordingRisk{}
	sim := NewSimExecutor(FillSpreadCapture, risk)

	tr, err := sim.Execute(context.Background(), buy("2"), domain.ExecContext{Snapshot: book("100", "101")})
	require.NoError(t, err)
	assert.Equal(t, "101", tr.Price.String())
	assert.Equal(t, "2", tr.Profit.String())

	tr, err = sim.Execute(context.Background(), sell("2"), domain.ExecContext{Snapshot: book("100", "101")})
	require.NoError(t, err)
	assert.Equal(t, "100", tr.Price.String())
	assert.Len(t, risk.fills, 2)
}

func TestNextTick(t *testing.T) {
	risk := &recordingRisk{}
	sim := NewSimExecutor(FillNextTick, risk)
	next := book("102", "103")

	tr, err := sim.Execute(context.Background(), buy("1"), domain.ExecContext{Snapshot: book("100", "101"), Next: &next})
	require.NoError(t, err)
	assert.Equal(t, "1", tr.Profit.String())

	tr, err = sim.Execute(context.Background(), sell("1"), domain.ExecContext{Snapshot: book("100", "101"), Next: &next})
	require.NoError(t, err)
	assert.Equal(t, "-3", tr.Profit.String())
}

func TestNextTickWithoutNextFails(t *testing.T) {
	risk := &recordingRisk{}
	sim := NewSimExecutor(FillNextTick, risk)

	_, err := sim.Execute(context.Background(), buy("1"), domain.ExecContext{Snapshot: book("100", "101")})
	var ee *domain.ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Empty(t, risk.fills)
}

func TestParseFillModel(t *testing.T) {
	m, err := ParseFillModel("next_tick")
	require.NoError(t, err)
	assert.True(t, m.NeedsNext())

	_, err = ParseFillModel("mid")
	assert.Error(t, err)
}

type fakeVenue struct {
	bid, ask decimal.Decimal
	fillAt   decimal.Decimal
	partial  decimal.Decimal
	expire   bool
	err      error
	orders   []decimal.Decimal
}

func (v *fakeVenue) BestBid(context.Context, string) (decimal.Decimal, error) { return v.bid, v.err }
func (v *fakeVenue) BestAsk(context.Context, string) (decimal.Decimal, error) { return v.ask, v.err }

func (v *fakeVenue) PlaceOrder(_ context.Context, symbol string, side domain.Side, price, amount decimal.Decimal) (domain.FillConfirmation, error) {
	v.orders = append(v.orders, price)
	if v.expire {
		return domain.FillConfirmation{OrderID: "1", Symbol: symbol, Side: side, FilledAmount: decimal.Zero, Status: "EXPIRED"}, nil
	}
	filled := amount
	if !v.partial.IsZero() {
		filled = v.partial
	}
	fillPrice := price
	if !v.fillAt.IsZero() {
		fillPrice = v.fillAt
	}
	return domain.FillConfirmation{OrderID: "1", Symbol: symbol, Side: side, Price: fillPrice, FilledAmount: filled, Status: "FILLED"}, nil
}

type fakeLimiter struct{ allow bool }

func (l fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return l.allow, nil
}

func newLive(v *fakeVenue, risk FillApplier, limit *OrderLimit) *LiveExecutor {
	return NewLiveExecutor(v, "SOLUSDT", risk, limit, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLivePricesCrossTheSpread(t *testing.T) {
	v := &fakeVenue{bid: dec("100"), ask: dec("101")}
	risk := &recordingRisk{}
	ex := newLive(v, risk, nil)

	_, err := ex.Execute(context.Background(), buy("1"), domain.ExecContext{})
	require.NoError(t, err)
	_, err = ex.Execute(context.Background(), sell("1"), domain.ExecContext{})
	require.NoError(t, err)

	// Buys take the ask, sells hit the bid.
	require.Len(t, v.orders, 2)
	assert.Equal(t, "101", v.orders[0].String())
	assert.Equal(t, "100", v.orders[1].String())
	require.Len(t, risk.fills, 2)
	assert.True(t, risk.fills[0].Profit.IsZero())
	assert.Equal(t, "-1", risk.fills[1].Profit.String())
}

func TestLiveExpiredOrderNotFilled(t *testing.T) {
	v := &fakeVenue{bid: dec("100"), ask: dec("101"), expire: true}
	risk := &recordingRisk{}
	ex := newLive(v, risk, nil)

	_, err := ex.Execute(context.Background(), buy("1"), domain.ExecContext{})
	require.ErrorIs(t, err, domain.ErrNotFilled)
	var ee *domain.ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "place_order", ee.Op)
	assert.Len(t, v.orders, 1)
	assert.Empty(t, risk.fills)
}

func TestLiveRealizedPnLAverageEntry(t *testing.T) {
	v := &fakeVenue{bid: dec("100"), ask: dec("101")}
	ex := newLive(v, &recordingRisk{}, nil)
	ctx := context.Background()

	v.fillAt = dec("100")
	_, err := ex.Execute(ctx, buy("1"), domain.ExecContext{})
	require.NoError(t, err)
	v.fillAt = dec("102")
	_, err = ex.Execute(ctx, buy("1"), domain.ExecContext{})
	require.NoError(t, err)

	// Average entry 101; sell 3 closes 2 long at 104 and opens 1 short.
	v.fillAt = dec("104")
	tr, err := ex.Execute(ctx, sell("3"), domain.ExecContext{})
	require.NoError(t, err)
	assert.Equal(t, "6", tr.Profit.String())

	v.fillAt = dec("103")
	tr, err = ex.Execute(ctx, buy("1"), domain.ExecContext{})
	require.NoError(t, err)
	assert.Equal(t, "1", tr.Profit.String())
}

func TestLiveRateLimited(t *testing.T) {
	v := &fakeVenue{bid: dec("100"), ask: dec("101")}
	risk := &recordingRisk{}
	ex := newLive(v, risk, &OrderLimit{Limiter: fakeLimiter{allow: false}, Max: 1, Window: time.Second})

	_, err := ex.Execute(context.Background(), buy("1"), domain.ExecContext{})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Empty(t, v.orders)
	assert.Empty(t, risk.fills)
}

func TestLiveVenueFailure(t *testing.T) {
	v := &fakeVenue{err: errors.New("connection reset")}
	risk := &recordingRisk{}
	ex := newLive(v, risk, nil)

	_, err := ex.Execute(context.Background(), buy("1"), domain.ExecContext{})
	var ee *domain.ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "quote", ee.Op)
	assert.Empty(t, risk.fills)
}
