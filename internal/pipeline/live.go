package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// SnapshotSource yields normalized snapshots in arrival order. Next blocks
// until a snapshot is available, the source fails, or ctx is done.
type SnapshotSource interface {
	Next(ctx context.Context) (domain.OrderBookSnapshot, error)
}

// LiveRunner drives a Pipeline from a live source. It is a single consumer:
// snapshots are processed one at a time in arrival order.
type LiveRunner struct {
	source     SnapshotSource
	pipeline   *Pipeline
	cache      domain.BookCache
	backoff    Backoff
	maxRetries int
	logger     *slog.Logger

	running atomic.Bool
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewLiveRunner creates a runner. maxRetries is the number of consecutive
// source or execution failures tolerated before Run gives up. An order the
// venue accepted but did not fill is not a failure.
func NewLiveRunner(source SnapshotSource, p *Pipeline, backoff Backoff, maxRetries int, logger *slog.Logger) *LiveRunner {
	return &LiveRunner{
		source:     source,
		pipeline:   p,
		backoff:    backoff,
		maxRetries: maxRetries,
		logger:     logger.With(slog.String("component", "live_runner")),
		sleep:      sleepCtx,
	}
}

// SetBookCache stores every processed snapshot in cache.
func (r *LiveRunner) SetBookCache(cache domain.BookCache) {
	r.cache = cache
}

// Running reports whether Run is active.
func (r *LiveRunner) Running() bool { return r.running.Load() }

// Stop asks Run to return after the current iteration.
func (r *LiveRunner) Stop() { r.running.Store(false) }

// Run processes snapshots until Stop, ctx cancellation, or too many
// consecutive failures. The last case returns domain.ErrConnectivityLost.
func (r *LiveRunner) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)

	r.logger.InfoContext(ctx, "live runner started")
	defer r.logger.InfoContext(ctx, "live runner stopped")

	failures := 0
	fail := func(stage string, err error) error {
		failures++
		if failures > r.maxRetries {
			return fmt.Errorf("pipeline: %d consecutive %s failures, last: %v: %w",
				failures, stage, err, domain.ErrConnectivityLost)
		}
		delay := r.backoff.Next(failures)
		r.logger.WarnContext(ctx, "live iteration failed, backing off",
			slog.String("stage", stage),
			slog.Int("attempt", failures),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		return r.sleep(ctx, delay)
	}

	for r.running.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap, err := r.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ferr := fail("source", err); ferr != nil {
				return ferr
			}
			continue
		}

		if r.cache != nil {
			if err := r.cache.SetSnapshot(ctx, snap); err != nil {
				r.logger.WarnContext(ctx, "book cache write failed", slog.String("error", err.Error()))
			}
		}

		res := r.pipeline.Step(ctx, domain.ExecContext{Snapshot: snap})
		if res.Outcome == OutcomeExecError {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ferr := fail("execution", res.Err); ferr != nil {
				return ferr
			}
			continue
		}
		failures = 0
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsFatal reports whether err ends live trading rather than a single
// iteration.
func IsFatal(err error) bool {
	return errors.Is(err, domain.ErrConnectivityLost)
}
