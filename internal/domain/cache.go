package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BookCache stores the latest normalized order book per symbol.
type BookCache interface {
	SetSnapshot(ctx context.Context, snap OrderBookSnapshot) error
	GetSnapshot(ctx context.Context, symbol string) (OrderBookSnapshot, error)
	GetBBO(ctx context.Context, symbol string) (bestBid, bestAsk decimal.Decimal, err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Well-known bus channels and streams.
const (
	ChannelSignal = "ch:signal"
	ChannelTrade  = "ch:trade"
	StreamTrades  = "stream:trades"
	StreamSamples = "stream:samples"
)
