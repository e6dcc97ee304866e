package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/executor"
	"github.com/alanyoungcy/hftbot/internal/feature"
	"github.com/alanyoungcy/hftbot/internal/ledger"
	"github.com/alanyoungcy/hftbot/internal/strategy"
)

// RiskGate approves signals before execution. It is implemented by
// service.RiskManager.
type RiskGate interface {
	Approve(ctx context.Context, sig domain.Signal) error
}

// Observer is notified of pipeline events. Implementations must not block
// for long; they run inside the per-instrument critical section.
type Observer interface {
	OnSignal(ctx context.Context, sig domain.Signal)
	OnTrade(ctx context.Context, trade domain.Trade, fv domain.FeatureVector)
	OnReject(ctx context.Context, sig domain.Signal, reason *domain.RiskLimitExceeded)
}

// Outcome classifies what happened to one snapshot.
type Outcome int

const (
	OutcomeNoSignal Outcome = iota
	OutcomeFeatureError
	OutcomeScoringError
	OutcomeRejected
	OutcomeLocked
	OutcomeExecError
	OutcomeNotFilled
	OutcomeTraded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoSignal:
		return "no_signal"
	case OutcomeFeatureError:
		return "feature_error"
	case OutcomeScoringError:
		return "scoring_error"
	case OutcomeRejected:
		return "rejected"
	case OutcomeLocked:
		return "locked"
	case OutcomeExecError:
		return "exec_error"
	case OutcomeNotFilled:
		return "not_filled"
	case OutcomeTraded:
		return "traded"
	default:
		return "unknown"
	}
}

// StepResult is the outcome of processing one snapshot.
type StepResult struct {
	Outcome Outcome
	Signal  *domain.Signal
	Trade   *domain.Trade
	Err     error
}

// Pipeline runs extract, generate, approve and execute for one instrument.
// The same Pipeline serves backtests and live trading; only the snapshot
// source and the executor differ.
type Pipeline struct {
	symbol    string
	extractor *feature.Extractor
	generator strategy.Generator
	risk      RiskGate
	executor  executor.Executor
	ledger    *ledger.Ledger
	observer  Observer
	logger    *slog.Logger

	locks   domain.LockManager
	lockTTL time.Duration

	mu sync.Mutex // serializes approve+execute+apply
}

// New creates a Pipeline. observer may be nil.
func New(
	symbol string,
	extractor *feature.Extractor,
	generator strategy.Generator,
	risk RiskGate,
	exec executor.Executor,
	l *ledger.Ledger,
	observer Observer,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		symbol:    symbol,
		extractor: extractor,
		generator: generator,
		risk:      risk,
		executor:  exec,
		ledger:    l,
		observer:  observer,
		logger:    logger.With(slog.String("component", "pipeline"), slog.String("symbol", symbol)),
	}
}

// SetLockManager makes every approve+execute section also hold a
// distributed lock on risk:<symbol>, so that two processes never trade the
// same instrument at once.
func (p *Pipeline) SetLockManager(locks domain.LockManager, ttl time.Duration) {
	p.locks = locks
	p.lockTTL = ttl
}

// Ledger returns the pipeline's trade ledger.
func (p *Pipeline) Ledger() *ledger.Ledger { return p.ledger }

// Step processes one snapshot. Errors are classified into the result and
// never returned separately; the caller decides which outcomes matter.
func (p *Pipeline) Step(ctx context.Context, ec domain.ExecContext) StepResult {
	fv, err := p.extractor.Extract(ec.Snapshot)
	if err != nil {
		p.logger.DebugContext(ctx, "no features for snapshot",
			slog.Time("ts", ec.Snapshot.Timestamp),
			slog.String("error", err.Error()),
		)
		return StepResult{Outcome: OutcomeFeatureError, Err: err}
	}

	sig, err := p.generator.Generate(ctx, fv, nil)
	if err != nil {
		p.logger.WarnContext(ctx, "signal generation failed",
			slog.String("generator", p.generator.Name()),
			slog.String("error", err.Error()),
		)
		return StepResult{Outcome: OutcomeScoringError, Err: err}
	}
	if sig == nil {
		return StepResult{Outcome: OutcomeNoSignal}
	}
	if p.observer != nil {
		p.observer.OnSignal(ctx, *sig)
	}

	return p.execute(ctx, *sig, fv, ec)
}

func (p *Pipeline) execute(ctx context.Context, sig domain.Signal, fv domain.FeatureVector, ec domain.ExecContext) StepResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, "risk:"+p.symbol, p.lockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				p.logger.WarnContext(ctx, "risk lock failed", slog.String("error", err.Error()))
			}
			return StepResult{Outcome: OutcomeLocked, Signal: &sig, Err: err}
		}
		defer unlock()
	}

	if err := p.risk.Approve(ctx, sig); err != nil {
		var rle *domain.RiskLimitExceeded
		if errors.As(err, &rle) && p.observer != nil {
			p.observer.OnReject(ctx, sig, rle)
		}
		return StepResult{Outcome: OutcomeRejected, Signal: &sig, Err: err}
	}

	trade, err := p.executor.Execute(ctx, sig, ec)
	if errors.Is(err, domain.ErrNotFilled) {
		p.logger.InfoContext(ctx, "order not filled",
			slog.String("side", string(sig.Side)),
			slog.String("error", err.Error()),
		)
		return StepResult{Outcome: OutcomeNotFilled, Signal: &sig, Err: err}
	}
	if err != nil {
		p.logger.WarnContext(ctx, "execution failed",
			slog.String("side", string(sig.Side)),
			slog.String("error", err.Error()),
		)
		return StepResult{Outcome: OutcomeExecError, Signal: &sig, Err: err}
	}

	p.ledger.Append(trade)
	if p.observer != nil {
		p.observer.OnTrade(ctx, trade, fv)
	}
	return StepResult{Outcome: OutcomeTraded, Signal: &sig, Trade: &trade}
}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (obs Observers) OnSignal(ctx context.Context, sig domain.Signal) {
	for _, o := range obs {
		o.OnSignal(ctx, sig)
	}
}

func (obs Observers) OnTrade(ctx context.Context, trade domain.Trade, fv domain.FeatureVector) {
	for _, o := range obs {
		o.OnTrade(ctx, trade, fv)
	}
}

func (obs Observers) OnReject(ctx context.Context, sig domain.Signal, reason *domain.RiskLimitExceeded) {
	for _, o := range obs {
		o.OnReject(ctx, sig, reason)
	}
}
