// Package metrics scores a trade ledger. Metrics are always recomputed from a
// full ledger snapshot.
package metrics

import (
	"errors"
	"math"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// ErrNoTrades is returned by Compute for an empty ledger.
var ErrNoTrades = errors.New("metrics: no trades to analyze")

// tradingDays annualizes the per-trade Sharpe ratio.
const tradingDays = 252

// Metrics summarizes one ledger.
type Metrics struct {
	TotalTrades      int       `yaml:"total_trades"`
	WinRate          float64   `yaml:"winrate"`
	MaxDrawdown      float64   `yaml:"max_drawdown"`
	MaxDrawdownPct   float64   `yaml:"max_drawdown_pct"`
	SharpeRatio      float64   `yaml:"sharpe_ratio"`
	AvgLatency       float64   `yaml:"avg_latency"` // seconds between consecutive trades
	ProfitFactor     float64   `yaml:"profit_factor"`
	FinalBalance     float64   `yaml:"final_balance"`
	ReturnPct        float64   `yaml:"return_pct"`
	CumulativeProfit []float64 `yaml:"cumulative_profit,flow"`
	BalancePath      []float64 `yaml:"balance_path,flow"`
}

// Compute derives Metrics from trades, which must be in ledger order.
func Compute(trades []domain.Trade, initialBalance float64) (Metrics, error) {
	n := len(trades)
	if n == 0 {
		return Metrics{}, ErrNoTrades
	}

	m := Metrics{
		TotalTrades:      n,
		CumulativeProfit: make([]float64, n),
		BalancePath:      make([]float64, n),
	}

	var (
		cum, peak              float64
		wins                   int
		grossProfit, grossLoss float64
		returns                = make([]float64, n)
		latencySum             float64
		ddIdx                  = -1
		ddPeak                 float64
	)

	for i, t := range trades {
		p := t.Profit.InexactFloat64()
		cum += p
		bal := initialBalance + cum
		m.CumulativeProfit[i] = cum
		m.BalancePath[i] = bal

		if i == 0 || bal > peak {
			peak = bal
		}
		if dd := peak - bal; ddIdx < 0 || dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
			ddIdx = i
			ddPeak = peak
		}

		switch {
		case p > 0:
			wins++
			grossProfit += p
		case p < 0:
			grossLoss += -p
		}

		if initialBalance != 0 {
			returns[i] = p / initialBalance
		}
		if i > 0 {
			latencySum += t.Timestamp.Sub(trades[i-1].Timestamp).Seconds()
		}
	}

	m.WinRate = float64(wins) / float64(n)
	m.FinalBalance = initialBalance + cum
	if initialBalance != 0 {
		m.ReturnPct = (m.FinalBalance - initialBalance) / initialBalance * 100
	}
	if ddPeak > 0 {
		m.MaxDrawdownPct = m.MaxDrawdown / ddPeak * 100
	}
	m.SharpeRatio = sharpe(returns)
	m.AvgLatency = latencySum / float64(n)
	m.ProfitFactor = profitFactor(grossProfit, grossLoss)

	return m, nil
}

// sharpe is mean*sqrt(252)/sample stddev, or 0 when the stddev is zero or
// undefined.
func sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(n-1))
	if std == 0 {
		return 0
	}
	return mean * math.Sqrt(tradingDays) / std
}

func profitFactor(grossProfit, grossLoss float64) float64 {
	switch {
	case grossLoss != 0:
		return grossProfit / grossLoss
	case grossProfit > 0:
		return math.Inf(1)
	default:
		return 0
	}
}
