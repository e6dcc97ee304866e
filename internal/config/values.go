package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Quantity returns the parsed order quantity.
func (s SignalConfig) Quantity() (decimal.Decimal, error) {
	q, err := decimal.NewFromString(s.OrderQuantity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: order_quantity: %w", err)
	}
	return q, nil
}

// Limits returns the parsed position ceiling and loss floor.
func (r RiskConfig) Limits() (maxPosition, maxLoss decimal.Decimal, err error) {
	maxPosition, err = decimal.NewFromString(r.MaxPosition)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: max_position: %w", err)
	}
	maxLoss, err = decimal.NewFromString(r.MaxLoss)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: max_loss: %w", err)
	}
	return maxPosition, maxLoss, nil
}

func parsePositive(s string) (string, bool) {
	d, err := decimal.NewFromString(s)
	return s, err == nil && d.IsPositive()
}

func isDecimal(s string) bool {
	_, err := decimal.NewFromString(s)
	return err == nil
}
