package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// RiskConfig holds the limits enforced by the risk gate.
type RiskConfig struct {
	MaxPosition decimal.Decimal // absolute position ceiling
	MaxLoss     decimal.Decimal // PnL floor, usually negative
}

// RiskManager gates signals against position and loss limits and owns the
// RiskState for one instrument. Approve only reads; fills are applied with
// ApplyFill so position and PnL move together.
type RiskManager struct {
	cfg    RiskConfig
	logger *slog.Logger

	mu    sync.RWMutex
	state domain.RiskState
}

// NewRiskManager creates a RiskManager with a flat position and zero PnL.
func NewRiskManager(cfg RiskConfig, logger *slog.Logger) *RiskManager {
	return &RiskManager{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk_manager")),
	}
}

// Approve checks that executing sig keeps |position| within MaxPosition and
// that PnL is not already below MaxLoss. It returns a
// *domain.RiskLimitExceeded on rejection and never changes state.
func (m *RiskManager) Approve(ctx context.Context, sig domain.Signal) error {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	projected := state.CurrentPosition.Add(sig.SignedQuantity())
	if projected.Abs().GreaterThan(m.cfg.MaxPosition) {
		m.logger.WarnContext(ctx, "max position limit exceeded",
			slog.String("side", string(sig.Side)),
			slog.String("position", state.CurrentPosition.String()),
			slog.String("projected", projected.String()),
			slog.String("max", m.cfg.MaxPosition.String()),
		)
		return &domain.RiskLimitExceeded{
			Reason: domain.RiskReasonMaxPosition,
			Detail: fmt.Sprintf("projected position %s exceeds %s", projected, m.cfg.MaxPosition),
		}
	}

	if state.CurrentPnL.LessThan(m.cfg.MaxLoss) {
		m.logger.WarnContext(ctx, "max loss limit exceeded",
			slog.String("pnl", state.CurrentPnL.String()),
			slog.String("max_loss", m.cfg.MaxLoss.String()),
		)
		return &domain.RiskLimitExceeded{
			Reason: domain.RiskReasonMaxLoss,
			Detail: fmt.Sprintf("pnl %s below %s", state.CurrentPnL, m.cfg.MaxLoss),
		}
	}

	return nil
}

// UpdatePosition adds the trade's signed amount to the position.
func (m *RiskManager) UpdatePosition(trade domain.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyPosition(trade)
}

// UpdatePnL adds profit to the running PnL.
func (m *RiskManager) UpdatePnL(profit decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.CurrentPnL = m.state.CurrentPnL.Add(profit)
}

// ApplyFill applies a trade's position and PnL effects in one step.
func (m *RiskManager) ApplyFill(trade domain.Trade) domain.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyPosition(trade)
	m.state.CurrentPnL = m.state.CurrentPnL.Add(trade.Profit)
	return m.state
}

// State returns a copy of the current risk state.
func (m *RiskManager) State() domain.RiskState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *RiskManager) applyPosition(trade domain.Trade) {
	m.state.CurrentPosition = m.state.CurrentPosition.Add(trade.Amount.Mul(trade.Side.Sign()))
}
