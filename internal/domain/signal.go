package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of a signal or trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() decimal.Decimal {
	if s == SideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Signal is a trade request produced by a signal generator. It is passed by
// value and never modified after construction.
type Signal struct {
	Source          string
	Side            Side
	Confidence      float64
	Imbalance       float64
	ProfitTargetPct float64
	StopLossPct     float64
	PositionSizePct float64
	Quantity        decimal.Decimal
}

// SignedQuantity returns the quantity with the side's sign applied.
func (s Signal) SignedQuantity() decimal.Decimal {
	return s.Quantity.Mul(s.Side.Sign())
}
