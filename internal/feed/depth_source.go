// Package feed turns the exchange depth stream into normalized snapshots for
// the live loop.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/hftbot/internal/book"
	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/platform/binance"
)

// DepthReader is one open depth stream connection.
type DepthReader interface {
	Read() (binance.DepthMessage, error)
	Close() error
}

// Dialer opens a depth stream connection.
type Dialer func(ctx context.Context) (DepthReader, error)

// BinanceDialer dials the partial depth stream for symbol. fast selects the
// 100ms update speed.
func BinanceDialer(baseURL, symbol string, levels int, fast bool) Dialer {
	path := binance.StreamPath(symbol, levels, fast)
	return func(ctx context.Context) (DepthReader, error) {
		return binance.DialDepth(ctx, baseURL, path)
	}
}

// DepthSource yields normalized snapshots from a depth stream. It dials
// lazily and, after a disconnect, returns the error and dials again on the
// next call, so reconnect pacing belongs to the caller's backoff.
type DepthSource struct {
	symbol     string
	dial       Dialer
	normalizer *book.Normalizer
	dedup      *Dedup
	logger     *slog.Logger
	now        func() time.Time

	conn   DepthReader
	lastTS time.Time
	seen   int
}

// NewDepthSource creates a DepthSource for symbol.
func NewDepthSource(symbol string, dial Dialer, dedupTTL time.Duration, logger *slog.Logger) *DepthSource {
	return &DepthSource{
		symbol:     symbol,
		dial:       dial,
		normalizer: book.NewNormalizer(symbol),
		dedup:      NewDedup(dedupTTL),
		logger:     logger.With(slog.String("component", "depth_source")),
		now:        time.Now,
	}
}

// Next returns the next new, well-formed snapshot. Malformed and duplicate
// updates are skipped. Snapshots are stamped with the receive time, kept
// strictly increasing.
func (s *DepthSource) Next(ctx context.Context) (domain.OrderBookSnapshot, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.OrderBookSnapshot{}, err
		}
		if s.conn == nil {
			conn, err := s.dial(ctx)
			if err != nil {
				return domain.OrderBookSnapshot{}, fmt.Errorf("feed: dial: %w", err)
			}
			s.conn = conn
			s.logger.InfoContext(ctx, "depth stream connected", slog.String("symbol", s.symbol))
		}

		msg, err := s.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.drop()
				return domain.OrderBookSnapshot{}, ctx.Err()
			}
			if errors.Is(err, domain.ErrWSDisconnect) {
				s.drop()
				return domain.OrderBookSnapshot{}, fmt.Errorf("feed: %w", err)
			}
			s.logger.WarnContext(ctx, "undecodable depth message skipped", slog.String("error", err.Error()))
			continue
		}

		if s.dedup.IsDuplicate(s.symbol + ":" + strconv.FormatInt(msg.LastUpdateID, 10)) {
			continue
		}
		if s.seen++; s.seen%1000 == 0 {
			s.dedup.Cleanup()
		}

		ts := s.now().UTC()
		if !ts.After(s.lastTS) {
			ts = s.lastTS.Add(time.Nanosecond)
		}
		snap, err := s.normalizer.Normalize(msg.Raw(s.symbol, ts.Format(time.RFC3339Nano)))
		if err != nil {
			s.logger.WarnContext(ctx, "malformed book skipped",
				slog.Int64("update_id", msg.LastUpdateID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.lastTS = ts
		return snap, nil
	}
}

// read unblocks a pending Read when ctx is cancelled by closing the
// connection.
func (s *DepthSource) read(ctx context.Context) (binance.DepthMessage, error) {
	conn := s.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	return conn.Read()
}

func (s *DepthSource) drop() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close closes the current connection, if any.
func (s *DepthSource) Close() error {
	s.drop()
	return nil
}
