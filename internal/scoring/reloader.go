package scoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Source opens the current model file.
type Source func(ctx context.Context) (io.ReadCloser, error)

// FileSource reads the model from a local path.
func FileSource(path string) Source {
	return func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// BlobSource reads the model from object storage.
func BlobSource(reader domain.BlobReader, key string) Source {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return reader.Get(ctx, key)
	}
}

// IsBlobPath reports whether path is an s3:// URL and returns its key.
func IsBlobPath(path string) (key string, ok bool) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", false
	}
	// Drop the bucket; the blob client is already bound to one.
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i+1:], true
	}
	return "", true
}

// Reloader serves Score from the most recently loaded Logistic model and
// periodically re-reads the source. A failed load, or a model whose arity
// differs from the first one, leaves the current model in place.
type Reloader struct {
	source   Source
	interval time.Duration
	arity    int
	current  atomic.Pointer[Logistic]
	logger   *slog.Logger
}

var _ domain.ScoringService = (*Reloader)(nil)

// NewReloader performs the initial load and fails if it does not succeed.
func NewReloader(ctx context.Context, source Source, interval time.Duration, logger *slog.Logger) (*Reloader, error) {
	r := &Reloader{
		source:   source,
		interval: interval,
		logger:   logger.With(slog.String("component", "scoring_reloader")),
	}
	m, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.arity = m.Arity()
	r.current.Store(m)
	return r, nil
}

func (r *Reloader) Arity() int { return r.arity }

func (r *Reloader) Score(ctx context.Context, features []float64) (float64, error) {
	return r.current.Load().Score(ctx, features)
}

// Reload re-reads the source once.
func (r *Reloader) Reload(ctx context.Context) error {
	m, err := r.load(ctx)
	if err != nil {
		return err
	}
	if m.Arity() != r.arity {
		return fmt.Errorf("scoring: reloaded model arity %d, serving %d: %w", m.Arity(), r.arity, domain.ErrFeatureArity)
	}
	r.current.Store(m)
	return nil
}

// Run reloads every interval until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	if r.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				r.logger.WarnContext(ctx, "model reload failed, keeping current model",
					slog.String("error", err.Error()),
				)
				continue
			}
			r.logger.InfoContext(ctx, "model reloaded",
				slog.String("version", r.current.Load().Version()),
			)
		}
	}
}

func (r *Reloader) load(ctx context.Context) (*Logistic, error) {
	rc, err := r.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("scoring: open model: %w", err)
	}
	defer rc.Close()
	return DecodeLogistic(rc)
}
