package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hftbot/internal/crypto"
	"github.com/alanyoungcy/hftbot/internal/dataset"
	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/executor"
	"github.com/alanyoungcy/hftbot/internal/feed"
	"github.com/alanyoungcy/hftbot/internal/ledger"
	"github.com/alanyoungcy/hftbot/internal/metrics"
	"github.com/alanyoungcy/hftbot/internal/pipeline"
	"github.com/alanyoungcy/hftbot/internal/platform/binance"
	"github.com/alanyoungcy/hftbot/internal/service"
	"github.com/alanyoungcy/hftbot/internal/strategy"
)

// BacktestMode replays the configured dataset once, writes the ledger,
// report and metrics files, and records the run.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backtest mode", slog.String("data", a.cfg.Backtest.DataPath))

	rows, err := dataset.Load(ctx, a.cfg.Backtest.DataPath, deps.BlobReader)
	if err != nil {
		return fmt.Errorf("app: load dataset: %w", err)
	}
	comps, err := buildComponents(a.cfg, deps.Scorer)
	if err != nil {
		return fmt.Errorf("app: build pipeline: %w", err)
	}
	btCfg, err := backtestConfig(a.cfg)
	if err != nil {
		return fmt.Errorf("app: backtest config: %w", err)
	}

	runs := a.runService(deps)
	run := a.newRun("backtest", comps.generator.Name(), string(btCfg.FillModel))
	if err := runs.Start(ctx, run); err != nil {
		return err
	}

	var observer pipeline.Observer
	if a.cfg.Live.CollectSamples && (deps.SampleStore != nil || deps.SignalBus != nil) {
		observer = service.NewSampleCollector(run.ID, a.cfg.Symbol, deps.SampleStore, deps.SignalBus, a.logger)
	}

	bt := pipeline.NewBacktester(btCfg, comps.extractor, comps.generator, observer, a.logger)
	res, err := bt.Run(ctx, rows)
	if err != nil {
		return err
	}

	rep := runReport(run, res)
	if err := a.writeArtifacts(rep, ""); err != nil {
		return err
	}
	if !rep.NoTrades {
		if err := metrics.WriteReport(a.out, rep.Metrics); err != nil {
			a.logger.WarnContext(ctx, "metrics report write failed", slog.String("error", err.Error()))
		}
	}

	prefix, err := runs.Record(ctx, rep, false)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "backtest finished",
		slog.String("run_id", run.ID),
		slog.Int("trades", res.Counters.Trades),
		slog.Bool("no_trades", res.NoTrades),
		slog.String("archive", prefix),
	)
	return nil
}

// SweepMode runs every [[backtest.variants]] entry over the same dataset in
// parallel and records each as its own run.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode",
		slog.String("data", a.cfg.Backtest.DataPath),
		slog.Int("variants", len(a.cfg.Backtest.Variants)),
	)

	rows, err := dataset.Load(ctx, a.cfg.Backtest.DataPath, deps.BlobReader)
	if err != nil {
		return fmt.Errorf("app: load dataset: %w", err)
	}
	base, err := backtestConfig(a.cfg)
	if err != nil {
		return fmt.Errorf("app: backtest config: %w", err)
	}
	variants, err := sweepVariants(a.cfg)
	if err != nil {
		return err
	}

	started := time.Now().UTC()
	sweeper := pipeline.NewSweeper(base, strategy.NewRegistry(), deps.Scorer, a.logger)
	results, err := sweeper.Run(ctx, rows, variants)
	if err != nil {
		return err
	}

	runs := a.runService(deps)
	for _, res := range results {
		run := a.newRun("sweep:"+res.Name, res.Generator, string(res.FillModel))
		run.StartedAt = started
		if err := runs.Start(ctx, run); err != nil {
			return err
		}
		rep := runReport(run, res)
		if err := a.writeArtifacts(rep, res.Name); err != nil {
			return err
		}
		if _, err := runs.Record(ctx, rep, false); err != nil {
			return err
		}
	}
	return nil
}

// LiveMode trades on the venue from its depth stream.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	return a.runLive(ctx, deps, false)
}

// PaperMode runs the live loop against the real depth stream but fills
// orders with the spread-capture simulator.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	return a.runLive(ctx, deps, true)
}

func (a *App) runLive(ctx context.Context, deps *Dependencies, paper bool) error {
	mode := "live"
	if paper {
		mode = "paper"
	}
	a.logger.InfoContext(ctx, "starting "+mode+" mode", slog.String("symbol", a.cfg.Symbol))

	comps, err := buildComponents(a.cfg, deps.Scorer)
	if err != nil {
		return fmt.Errorf("app: build pipeline: %w", err)
	}
	rc, err := riskConfig(a.cfg)
	if err != nil {
		return fmt.Errorf("app: risk config: %w", err)
	}
	risk := service.NewRiskManager(rc, a.logger)

	var exec executor.Executor
	fillModel := mode
	if paper {
		exec = executor.NewSimExecutor(executor.FillSpreadCapture, risk)
		fillModel = string(executor.FillSpreadCapture)
	} else {
		venue, err := a.venueClient()
		if err != nil {
			return err
		}
		exec = executor.NewLiveExecutor(venue, a.cfg.Symbol, risk, orderLimit(a.cfg, deps.RateLimiter), a.logger)
	}

	runs := a.runService(deps)
	run := a.newRun(mode, comps.generator.Name(), fillModel)
	if err := runs.Start(ctx, run); err != nil {
		return err
	}

	recDeps := service.TradeRecorderDeps{
		Trades: deps.LedgerStore,
		Bus:    deps.SignalBus,
		Audit:  deps.AuditStore,
		Notify: deps.Notifier,
	}
	if a.cfg.Live.LedgerPath != "" {
		file, err := ledger.CreateCSV(a.cfg.Live.LedgerPath)
		if err != nil {
			return fmt.Errorf("app: open ledger file: %w", err)
		}
		defer file.Close()
		recDeps.File = file
	}
	recorder := service.NewTradeRecorder(run.ID, recDeps, a.logger)

	observers := pipeline.Observers{recorder}
	if a.cfg.Live.CollectSamples && (deps.SampleStore != nil || deps.SignalBus != nil) {
		observers = append(observers, service.NewSampleCollector(run.ID, a.cfg.Symbol, deps.SampleStore, deps.SignalBus, a.logger))
	}

	l := ledger.New()
	p := pipeline.New(a.cfg.Symbol, comps.extractor, comps.generator, risk, exec, l, observers, a.logger)
	if deps.LockManager != nil {
		p.SetLockManager(deps.LockManager, a.cfg.Live.LockTTL.Duration)
	}

	dial := feed.BinanceDialer(a.cfg.Venue.StreamURL, a.cfg.Symbol, a.cfg.Live.DepthLevels, a.cfg.Live.FastUpdates)
	source := feed.NewDepthSource(a.cfg.Symbol, dial, a.cfg.Live.DedupTTL.Duration, a.logger)
	defer source.Close()

	runner := pipeline.NewLiveRunner(source, p, liveBackoff(a.cfg), a.cfg.Live.MaxRetries, a.logger)
	if deps.BookCache != nil {
		runner.SetBookCache(deps.BookCache)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return runner.Run(gctx)
	})
	if deps.Reloader != nil {
		g.Go(func() error {
			err := deps.Reloader.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	runErr := g.Wait()

	// The parent context is usually cancelled by now; persistence still has
	// to happen.
	finishCtx := context.WithoutCancel(ctx)
	if pipeline.IsFatal(runErr) {
		recorder.Fatal(finishCtx, runErr)
	}

	rep := service.RunReport{Run: run, Trades: l.Trades()}
	m, err := metrics.Compute(rep.Trades, a.cfg.Backtest.InitialBalance)
	switch {
	case errors.Is(err, metrics.ErrNoTrades):
		rep.NoTrades = true
	case err != nil:
		a.logger.WarnContext(finishCtx, "live metrics failed", slog.String("error", err.Error()))
		rep.NoTrades = true
	default:
		rep.Metrics = m
	}
	if _, err := runs.Record(finishCtx, rep, deps.LedgerStore != nil); err != nil {
		a.logger.ErrorContext(finishCtx, "recording live run failed", slog.String("error", err.Error()))
	}

	state := risk.State()
	a.logger.InfoContext(finishCtx, mode+" session ended",
		slog.String("run_id", run.ID),
		slog.Int("trades", l.Len()),
		slog.String("position", state.CurrentPosition.String()),
		slog.String("pnl", state.CurrentPnL.String()),
	)
	return runErr
}

// venueClient builds the signed REST client. The API secret comes from the
// config or its encrypted file.
func (a *App) venueClient() (*binance.Client, error) {
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		Raw:           a.cfg.Venue.APISecret,
		EncryptedPath: a.cfg.Venue.EncryptedSecretPath,
		Password:      a.cfg.Venue.SecretPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: load venue secret: %w", err)
	}
	auth := &crypto.QueryAuth{
		Key:        a.cfg.Venue.APIKey,
		Secret:     secret,
		RecvWindow: time.Duration(a.cfg.Venue.RecvWindow) * time.Millisecond,
	}
	return binance.NewClient(a.cfg.Venue.BaseURL, auth, a.cfg.Venue.Timeout.Duration), nil
}

func (a *App) runService(deps *Dependencies) *service.RunService {
	return service.NewRunService(deps.RunStore, deps.LedgerStore, deps.Archiver, deps.AuditStore, deps.Notifier, a.logger)
}

func (a *App) newRun(mode, generator, fillModel string) domain.Run {
	return domain.Run{
		ID:             uuid.NewString(),
		Mode:           mode,
		Symbol:         a.cfg.Symbol,
		Generator:      generator,
		FillModel:      fillModel,
		InitialBalance: a.cfg.Backtest.InitialBalance,
		StartedAt:      time.Now().UTC(),
	}
}

func runReport(run domain.Run, res *pipeline.BacktestResult) service.RunReport {
	return service.RunReport{
		Run:      run,
		Trades:   res.Ledger.Trades(),
		Metrics:  res.Metrics,
		NoTrades: res.NoTrades,
	}
}

// writeArtifacts writes the ledger, report and metrics files of a run.
// variant, when set, is inserted before each file extension.
func (a *App) writeArtifacts(rep service.RunReport, variant string) error {
	art, err := service.Artifacts(rep)
	if err != nil {
		return err
	}
	files := []struct {
		path string
		data []byte
	}{
		{a.cfg.Backtest.LedgerPath, art.Ledger},
		{a.cfg.Backtest.ReportPath, art.Report},
		{a.cfg.Backtest.MetricsPath, art.Metrics},
	}
	for _, f := range files {
		if f.path == "" || f.data == nil {
			continue
		}
		path := withVariant(f.path, variant)
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("app: create %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return fmt.Errorf("app: write %s: %w", path, err)
		}
		a.logger.Info("artifact written", slog.String("path", path))
	}
	return nil
}

// withVariant turns "data/report.txt" into "data/report.<variant>.txt".
func withVariant(path, variant string) string {
	if variant == "" {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + variant + ext
}
