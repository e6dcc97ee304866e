package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Notifier delivers operator alerts. It is implemented by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event names.
const (
	EventTrade            = "trade"
	EventRiskRejected     = "risk_rejected"
	EventFatal            = "fatal"
	EventBacktestComplete = "backtest_complete"
)

// TradeWriter appends a trade to a local ledger file. It is implemented by
// ledger.CSVWriter.
type TradeWriter interface {
	Write(t domain.Trade) error
}

// TradeRecorder fans pipeline events out to the configured sinks: ledger
// file, ledger store, signal bus, audit log and notifier. Every sink is
// optional and sink failures are logged, never returned, so recording can
// not stall trading.
type TradeRecorder struct {
	runID  string
	file   TradeWriter
	trades domain.LedgerStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	notify Notifier
	logger *slog.Logger

	mu  sync.Mutex
	seq int
}

// TradeRecorderDeps lists the optional sinks of a TradeRecorder.
type TradeRecorderDeps struct {
	File   TradeWriter
	Trades domain.LedgerStore
	Bus    domain.SignalBus
	Audit  domain.AuditStore
	Notify Notifier
}

// NewTradeRecorder creates a TradeRecorder for one run.
func NewTradeRecorder(runID string, deps TradeRecorderDeps, logger *slog.Logger) *TradeRecorder {
	return &TradeRecorder{
		runID:  runID,
		file:   deps.File,
		trades: deps.Trades,
		bus:    deps.Bus,
		audit:  deps.Audit,
		notify: deps.Notify,
		logger: logger.With(slog.String("component", "trade_recorder")),
	}
}

type signalEvent struct {
	RunID      string  `json:"run_id"`
	Source     string  `json:"source"`
	Side       string  `json:"side"`
	Confidence float64 `json:"confidence"`
	Imbalance  float64 `json:"imbalance"`
	Quantity   string  `json:"quantity"`
}

type tradeEvent struct {
	RunID     string `json:"run_id"`
	Seq       int    `json:"seq"`
	Timestamp string `json:"timestamp"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Profit    string `json:"profit"`
}

// OnSignal publishes the signal on the signal channel.
func (r *TradeRecorder) OnSignal(ctx context.Context, sig domain.Signal) {
	if r.bus == nil {
		return
	}
	payload, _ := json.Marshal(signalEvent{
		RunID:      r.runID,
		Source:     sig.Source,
		Side:       string(sig.Side),
		Confidence: sig.Confidence,
		Imbalance:  sig.Imbalance,
		Quantity:   sig.Quantity.String(),
	})
	if err := r.bus.Publish(ctx, domain.ChannelSignal, payload); err != nil {
		r.logger.WarnContext(ctx, "publish signal failed", slog.String("error", err.Error()))
	}
}

// OnTrade records an executed trade in every sink.
func (r *TradeRecorder) OnTrade(ctx context.Context, trade domain.Trade, _ domain.FeatureVector) {
	r.mu.Lock()
	seq := r.seq
	r.seq++
	r.mu.Unlock()

	if r.file != nil {
		if err := r.file.Write(trade); err != nil {
			r.logger.WarnContext(ctx, "ledger file write failed", slog.String("error", err.Error()))
		}
	}
	if r.trades != nil {
		if err := r.trades.Append(ctx, r.runID, seq, trade); err != nil {
			r.logger.WarnContext(ctx, "ledger store append failed",
				slog.Int("seq", seq),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.bus != nil {
		payload, _ := json.Marshal(tradeEvent{
			RunID:     r.runID,
			Seq:       seq,
			Timestamp: trade.Timestamp.Format(time.RFC3339Nano),
			Side:      string(trade.Side),
			Price:     trade.Price.String(),
			Amount:    trade.Amount.String(),
			Profit:    trade.Profit.String(),
		})
		if err := r.bus.Publish(ctx, domain.ChannelTrade, payload); err != nil {
			r.logger.WarnContext(ctx, "publish trade failed", slog.String("error", err.Error()))
		}
		if err := r.bus.StreamAppend(ctx, domain.StreamTrades, payload); err != nil {
			r.logger.WarnContext(ctx, "trade stream append failed", slog.String("error", err.Error()))
		}
	}
	if r.notify != nil {
		msg := fmt.Sprintf("%s %s @ %s, profit %s", trade.Side, trade.Amount, trade.Price, trade.Profit)
		if err := r.notify.Notify(ctx, EventTrade, "Trade executed", msg); err != nil {
			r.logger.WarnContext(ctx, "trade notification failed", slog.String("error", err.Error()))
		}
	}
}

// OnReject writes the rejection to the audit log and notifies.
func (r *TradeRecorder) OnReject(ctx context.Context, sig domain.Signal, reason *domain.RiskLimitExceeded) {
	if r.audit != nil {
		err := r.audit.Log(ctx, r.runID, EventRiskRejected, map[string]any{
			"reason":   string(reason.Reason),
			"detail":   reason.Detail,
			"side":     string(sig.Side),
			"quantity": sig.Quantity.String(),
		})
		if err != nil {
			r.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	if r.notify != nil {
		if err := r.notify.Notify(ctx, EventRiskRejected, "Signal rejected", reason.Error()); err != nil {
			r.logger.WarnContext(ctx, "rejection notification failed", slog.String("error", err.Error()))
		}
	}
}

// Fatal audits and announces an error that stopped the run.
func (r *TradeRecorder) Fatal(ctx context.Context, cause error) {
	if r.audit != nil {
		if err := r.audit.Log(ctx, r.runID, EventFatal, map[string]any{"error": cause.Error()}); err != nil {
			r.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	if r.notify != nil {
		if err := r.notify.Notify(ctx, EventFatal, "Trading stopped", cause.Error()); err != nil {
			r.logger.WarnContext(ctx, "fatal notification failed", slog.String("error", err.Error()))
		}
	}
}
