package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/ledger"
	"github.com/alanyoungcy/hftbot/internal/metrics"
)

// RunReport is a finished run ready to be persisted.
type RunReport struct {
	Run      domain.Run
	Trades   []domain.Trade
	Metrics  metrics.Metrics
	NoTrades bool
}

// RunService persists run headers, ledgers and reports. Every backend is
// optional; with none configured Record only renders the artifacts.
type RunService struct {
	runs     domain.RunStore
	trades   domain.LedgerStore
	archiver domain.Archiver
	audit    domain.AuditStore
	notify   Notifier
	logger   *slog.Logger
}

// NewRunService creates a RunService.
func NewRunService(
	runs domain.RunStore,
	trades domain.LedgerStore,
	archiver domain.Archiver,
	audit domain.AuditStore,
	notify Notifier,
	logger *slog.Logger,
) *RunService {
	return &RunService{
		runs:     runs,
		trades:   trades,
		archiver: archiver,
		audit:    audit,
		notify:   notify,
		logger:   logger.With(slog.String("component", "run_service")),
	}
}

// Start writes the run header.
func (s *RunService) Start(ctx context.Context, run domain.Run) error {
	if s.runs == nil {
		return nil
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("run service: create run %s: %w", run.ID, err)
	}
	return nil
}

// Artifacts renders the ledger CSV, the text report and the YAML metrics of
// a finished run.
func Artifacts(rep RunReport) (domain.RunArtifacts, error) {
	csvData, err := ledger.Encode(rep.Trades)
	if err != nil {
		return domain.RunArtifacts{}, fmt.Errorf("run service: encode ledger: %w", err)
	}
	art := domain.RunArtifacts{RunID: rep.Run.ID, Ledger: csvData}
	if rep.NoTrades {
		return art, nil
	}

	var report, yml bytes.Buffer
	if err := metrics.WriteReport(&report, rep.Metrics); err != nil {
		return domain.RunArtifacts{}, fmt.Errorf("run service: render report: %w", err)
	}
	if err := metrics.WriteYAML(&yml, rep.Metrics); err != nil {
		return domain.RunArtifacts{}, fmt.Errorf("run service: render metrics: %w", err)
	}
	art.Report = report.Bytes()
	art.Metrics = yml.Bytes()
	return art, nil
}

// Record persists a finished run. The ledger is written when the run did
// not stream its trades already. It returns the archive prefix, empty when
// no archiver is configured.
func (s *RunService) Record(ctx context.Context, rep RunReport, ledgerStreamed bool) (string, error) {
	finished := time.Now().UTC()
	if rep.Run.FinishedAt != nil {
		finished = *rep.Run.FinishedAt
	}

	if s.trades != nil && !ledgerStreamed && len(rep.Trades) > 0 {
		if err := s.trades.InsertBatch(ctx, rep.Run.ID, rep.Trades); err != nil {
			return "", fmt.Errorf("run service: insert ledger for %s: %w", rep.Run.ID, err)
		}
	}

	var values map[string]float64
	if !rep.NoTrades {
		values = rep.Metrics.Map()
	}
	if s.runs != nil {
		if err := s.runs.Finish(ctx, rep.Run.ID, finished, values, rep.NoTrades); err != nil {
			return "", fmt.Errorf("run service: finish run %s: %w", rep.Run.ID, err)
		}
	}

	var prefix string
	if s.archiver != nil {
		art, err := Artifacts(rep)
		if err != nil {
			return "", err
		}
		prefix, err = s.archiver.ArchiveRun(ctx, art)
		if err != nil {
			return "", fmt.Errorf("run service: archive run %s: %w", rep.Run.ID, err)
		}
	}

	if s.audit != nil {
		detail := map[string]any{
			"generator":  rep.Run.Generator,
			"fill_model": rep.Run.FillModel,
			"trades":     len(rep.Trades),
			"no_trades":  rep.NoTrades,
		}
		if prefix != "" {
			detail["archive"] = prefix
		}
		if err := s.audit.Log(ctx, rep.Run.ID, "run_finished", detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if s.notify != nil {
		msg := fmt.Sprintf("run %s (%s): no trades", rep.Run.ID, rep.Run.Generator)
		if !rep.NoTrades {
			msg = fmt.Sprintf("run %s (%s): %d trades, return %.4f%%, sharpe %.4f",
				rep.Run.ID, rep.Run.Generator, rep.Metrics.TotalTrades, rep.Metrics.ReturnPct, rep.Metrics.SharpeRatio)
		}
		if err := s.notify.Notify(ctx, EventBacktestComplete, "Backtest complete", msg); err != nil {
			s.logger.WarnContext(ctx, "run notification failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "run recorded",
		slog.String("run_id", rep.Run.ID),
		slog.Int("trades", len(rep.Trades)),
		slog.String("archive", prefix),
	)
	return prefix, nil
}
