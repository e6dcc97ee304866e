package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one executed fill, simulated or live. Ledger entries are
// immutable once appended.
type Trade struct {
	Timestamp time.Time
	Side      Side
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Profit    decimal.Decimal
}

// RiskState is the mutable position/PnL record for one instrument.
type RiskState struct {
	CurrentPosition decimal.Decimal
	CurrentPnL      decimal.Decimal
}

// FillConfirmation is what an execution venue reports for an accepted order.
type FillConfirmation struct {
	OrderID      string
	Symbol       string
	Side         Side
	Price        decimal.Decimal // average fill price
	FilledAmount decimal.Decimal
	Status       string
}
