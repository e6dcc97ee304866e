package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestRisk() *RiskManager {
	return NewRiskManager(RiskConfig{MaxPosition: dec("0.1"), MaxLoss: dec("-500")}, discardLogger())
}

func signal(side domain.Side, qty string) domain.Signal {
	return domain.Signal{Side: side, Quantity: dec(qty)}
}

func TestApproveRejectsPositionBreachWithoutMutating(t *testing.T) {
	rm := newTestRisk()
	ctx := context.Background()

	rm.ApplyFill(domain.Trade{Side: domain.SideBuy, Amount: dec("0.1")})
	before := rm.State()

	err := rm.Approve(ctx, signal(domain.SideBuy, "0.01"))
	var rle *domain.RiskLimitExceeded
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, domain.RiskReasonMaxPosition, rle.Reason)
	assert.Equal(t, before, rm.State())

	// Reducing the position is still allowed.
	assert.NoError(t, rm.Approve(ctx, signal(domain.SideSell, "0.05")))
}

func TestApproveRejectsAfterMaxLoss(t *testing.T) {
	rm := newTestRisk()
	rm.UpdatePnL(dec("-500"))
	assert.NoError(t, rm.Approve(context.Background(), signal(domain.SideBuy, "0.01")))

	rm.UpdatePnL(dec("-0.01"))
	err := rm.Approve(context.Background(), signal(domain.SideBuy, "0.01"))

	var rle *domain.RiskLimitExceeded
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, domain.RiskReasonMaxLoss, rle.Reason)
}

func TestApplyFillUpdatesBoth(t *testing.T) {
	rm := newTestRisk()
	st := rm.ApplyFill(domain.Trade{Side: domain.SideSell, Amount: dec("0.03"), Profit: dec("1.5")})
	assert.Equal(t, "-0.03", st.CurrentPosition.String())
	assert.Equal(t, "1.5", st.CurrentPnL.String())

	rm.UpdatePosition(domain.Trade{Side: domain.SideBuy, Amount: dec("0.01")})
	assert.Equal(t, "-0.02", rm.State().CurrentPosition.String())
}

func TestPositionStaysWithinLimit(t *testing.T) {
	rm := newTestRisk()
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))
	qtys := []string{"0.01", "0.02", "0.05", "0.07"}

	for i := 0; i < 2000; i++ {
		side := domain.SideBuy
		if rng.IntN(2) == 0 {
			side = domain.SideSell
		}
		sig := signal(side, qtys[rng.IntN(len(qtys))])
		if rm.Approve(ctx, sig) != nil {
			continue
		}
		st := rm.ApplyFill(domain.Trade{Side: sig.Side, Amount: sig.Quantity})
		require.False(t, st.CurrentPosition.Abs().GreaterThan(dec("0.1")), "iteration %d: %s", i, st.CurrentPosition)
	}
}
