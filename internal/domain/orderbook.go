package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+volume entry in an order book.
type PriceLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// OrderBookSnapshot is a canonical, validated order book. Bids are sorted by
// descending price, asks by ascending price, and the book is never crossed.
// Only the book normalizer constructs these.
type OrderBookSnapshot struct {
	Symbol    string
	Timestamp time.Time
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// BestBid returns the highest bid price, or zero when the bid side is empty.
func (s OrderBookSnapshot) BestBid() decimal.Decimal {
	if len(s.Bids) == 0 {
		return decimal.Zero
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask price, or zero when the ask side is empty.
func (s OrderBookSnapshot) BestAsk() decimal.Decimal {
	if len(s.Asks) == 0 {
		return decimal.Zero
	}
	return s.Asks[0].Price
}

// Mid returns (best_bid + best_ask) / 2.
func (s OrderBookSnapshot) Mid() decimal.Decimal {
	return s.BestBid().Add(s.BestAsk()).Div(decimal.NewFromInt(2))
}

// RawSnapshot is an order book as it arrives on the wire or in a historical
// row. Sides are pointers so an absent side can be told apart from an empty
// one.
type RawSnapshot struct {
	Symbol    string      `json:"symbol,omitempty"`
	Timestamp string      `json:"timestamp"`
	Bids      *[]RawLevel `json:"bids"`
	Asks      *[]RawLevel `json:"asks"`
}

// RawLevel is one loosely shaped level. It decodes from either a
// [price, volume] pair or an object carrying "price" and one of "qty",
// "volume" or "amount". Numbers may be JSON numbers or strings.
type RawLevel struct {
	Price  *decimal.Decimal
	Volume *decimal.Decimal
}

// UnmarshalJSON implements json.Unmarshaler for both accepted level shapes.
func (l *RawLevel) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) > 0 {
			p, err := decodeDecimal(pair[0])
			if err != nil {
				return fmt.Errorf("level price: %w", err)
			}
			l.Price = p
		}
		if len(pair) > 1 {
			v, err := decodeDecimal(pair[1])
			if err != nil {
				return fmt.Errorf("level volume: %w", err)
			}
			l.Volume = v
		}
		return nil
	}

	var obj struct {
		Price  json.RawMessage `json:"price"`
		Qty    json.RawMessage `json:"qty"`
		Volume json.RawMessage `json:"volume"`
		Amount json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("level: %w", err)
	}

	p, err := decodeDecimal(obj.Price)
	if err != nil {
		return fmt.Errorf("level price: %w", err)
	}
	l.Price = p

	for _, raw := range []json.RawMessage{obj.Volume, obj.Qty, obj.Amount} {
		v, err := decodeDecimal(raw)
		if err != nil {
			return fmt.Errorf("level volume: %w", err)
		}
		if v != nil {
			l.Volume = v
			break
		}
	}
	return nil
}

// decodeDecimal returns nil for an absent or null value.
func decodeDecimal(raw json.RawMessage) (*decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return &d, nil
}

// ExecContext is the book context an executor fills against. Next is the
// following snapshot in sequence when one is known.
type ExecContext struct {
	Snapshot OrderBookSnapshot
	Next     *OrderBookSnapshot
}
