// Package ledger holds the append-only trade record of a run and its CSV
// encoding.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Ledger is an append-only, concurrency-safe list of trades.
type Ledger struct {
	mu     sync.RWMutex
	trades []domain.Trade
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append adds a trade and returns its zero-based sequence number.
func (l *Ledger) Append(t domain.Trade) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, t)
	return len(l.trades) - 1
}

// Len returns the number of trades recorded.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Trades returns a copy of the recorded trades.
func (l *Ledger) Trades() []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// TotalProfit sums the profit of every trade.
func (l *Ledger) TotalProfit() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, t := range l.trades {
		total = total.Add(t.Profit)
	}
	return total
}
