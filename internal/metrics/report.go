package metrics

import (
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

// reportLine is one labeled value in the text report.
type reportLine struct {
	label string
	value float64
}

func (m Metrics) lines() []reportLine {
	return []reportLine{
		{"Total Trades", float64(m.TotalTrades)},
		{"Winrate", m.WinRate},
		{"Max Drawdown", m.MaxDrawdown},
		{"Max Drawdown Pct", m.MaxDrawdownPct},
		{"Sharpe Ratio", m.SharpeRatio},
		{"Avg Latency", m.AvgLatency},
		{"Profit Factor", m.ProfitFactor},
		{"Final Balance", m.FinalBalance},
		{"Return Pct", m.ReturnPct},
	}
}

// WriteReport writes the plain-text metrics report.
func WriteReport(w io.Writer, m Metrics) error {
	if _, err := io.WriteString(w, "Backtest Metrics Report\n======================\n"); err != nil {
		return fmt.Errorf("metrics: write report: %w", err)
	}
	for _, l := range m.lines() {
		if _, err := fmt.Fprintf(w, "%s: %s\n", l.label, formatValue(l.value)); err != nil {
			return fmt.Errorf("metrics: write report: %w", err)
		}
	}
	return nil
}

// WriteYAML writes m as a YAML document. Infinite values are encoded as
// YAML's .inf.
func WriteYAML(w io.Writer, m Metrics) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("metrics: encode yaml: %w", err)
	}
	return enc.Close()
}

// Map returns the scalar metrics keyed by their YAML names, for stores and
// notifications.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		"total_trades":     float64(m.TotalTrades),
		"winrate":          m.WinRate,
		"max_drawdown":     m.MaxDrawdown,
		"max_drawdown_pct": m.MaxDrawdownPct,
		"sharpe_ratio":     m.SharpeRatio,
		"avg_latency":      m.AvgLatency,
		"profit_factor":    m.ProfitFactor,
		"final_balance":    m.FinalBalance,
		"return_pct":       m.ReturnPct,
	}
}

func formatValue(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	default:
		return fmt.Sprintf("%.4f", v)
	}
}
