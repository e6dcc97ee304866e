// Package book turns raw order book payloads into canonical snapshots. It is
// the only place a loosely shaped book is validated; everything downstream
// works on domain.OrderBookSnapshot.
package book

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// timestampLayouts are tried in order when parsing snapshot timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Normalizer validates raw snapshots. The zero value is usable; Symbol is
// applied to snapshots that do not carry their own.
type Normalizer struct {
	Symbol string
}

// NewNormalizer returns a Normalizer that stamps symbol on every snapshot
// without one.
func NewNormalizer(symbol string) *Normalizer {
	return &Normalizer{Symbol: symbol}
}

// Normalize validates raw and returns its canonical form. Any violation is
// reported as *domain.MalformedBookError and no partial snapshot is returned.
func (n *Normalizer) Normalize(raw domain.RawSnapshot) (domain.OrderBookSnapshot, error) {
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	if raw.Bids == nil {
		return domain.OrderBookSnapshot{}, malformed("bids side absent")
	}
	if raw.Asks == nil {
		return domain.OrderBookSnapshot{}, malformed("asks side absent")
	}

	bids, err := levels("bid", *raw.Bids)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	asks, err := levels("ask", *raw.Asks)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })

	if len(bids) > 0 && len(asks) > 0 && bids[0].Price.GreaterThanOrEqual(asks[0].Price) {
		return domain.OrderBookSnapshot{}, malformed(fmt.Sprintf(
			"crossed book: best bid %s >= best ask %s", bids[0].Price, asks[0].Price))
	}

	symbol := raw.Symbol
	if symbol == "" {
		symbol = n.Symbol
	}

	return domain.OrderBookSnapshot{
		Symbol:    symbol,
		Timestamp: ts,
		Bids:      bids,
		Asks:      asks,
	}, nil
}

// NormalizeJSON decodes a JSON payload and normalizes it. Decode failures
// are reported as malformed books too.
func (n *Normalizer) NormalizeJSON(data []byte) (domain.OrderBookSnapshot, error) {
	var raw domain.RawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.OrderBookSnapshot{}, malformed("decode: " + err.Error())
	}
	return n.Normalize(raw)
}

// ParseTimestamp parses an ISO-8601 timestamp and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, malformed("timestamp missing")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, malformed(fmt.Sprintf("timestamp %q unparsable", s))
}

func levels(side string, raw []domain.RawLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for i, lvl := range raw {
		if lvl.Price == nil {
			return nil, malformed(fmt.Sprintf("%s level %d: price missing", side, i))
		}
		if lvl.Volume == nil {
			return nil, malformed(fmt.Sprintf("%s level %d: volume missing", side, i))
		}
		if lvl.Price.IsNegative() || lvl.Volume.IsNegative() {
			return nil, malformed(fmt.Sprintf("%s level %d: negative price or volume", side, i))
		}
		out = append(out, domain.PriceLevel{Price: *lvl.Price, Volume: *lvl.Volume})
	}
	return out, nil
}

func malformed(reason string) error {
	return &domain.MalformedBookError{Reason: reason}
}
