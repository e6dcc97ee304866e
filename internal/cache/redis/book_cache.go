package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// BookCache implements domain.BookCache. Each symbol has two keys:
//
//	book:{symbol}:snapshot - JSON of the last normalized snapshot
//	book:{symbol}:bbo      - hash with "bid", "ask" and "ts"
//
// Both expire after ttl so a dead feed does not leave a stale book behind.
type BookCache struct {
	c   *Client
	ttl time.Duration
}

var _ domain.BookCache = (*BookCache)(nil)

// NewBookCache creates a BookCache. ttl <= 0 disables expiry.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	return &BookCache{c: c, ttl: ttl}
}

func (bc *BookCache) snapshotKey(symbol string) string { return bc.c.Key("book", symbol, "snapshot") }
func (bc *BookCache) bboKey(symbol string) string      { return bc.c.Key("book", symbol, "bbo") }

// cachedLevel and cachedBook are the stored JSON shape. Decimals are kept as
// strings so no precision is lost.
type cachedLevel struct {
	Price  string `json:"p"`
	Volume string `json:"v"`
}

type cachedBook struct {
	Symbol    string        `json:"symbol"`
	Timestamp int64         `json:"ts"`
	Bids      []cachedLevel `json:"bids"`
	Asks      []cachedLevel `json:"asks"`
}

func encodeSnapshot(snap domain.OrderBookSnapshot) ([]byte, error) {
	cb := cachedBook{
		Symbol:    snap.Symbol,
		Timestamp: snap.Timestamp.UnixNano(),
		Bids:      make([]cachedLevel, 0, len(snap.Bids)),
		Asks:      make([]cachedLevel, 0, len(snap.Asks)),
	}
	for _, l := range snap.Bids {
		cb.Bids = append(cb.Bids, cachedLevel{Price: l.Price.String(), Volume: l.Volume.String()})
	}
	for _, l := range snap.Asks {
		cb.Asks = append(cb.Asks, cachedLevel{Price: l.Price.String(), Volume: l.Volume.String()})
	}
	return json.Marshal(cb)
}

func decodeSnapshot(data []byte) (domain.OrderBookSnapshot, error) {
	var cb cachedBook
	if err := json.Unmarshal(data, &cb); err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	bids, err := decodeLevels(cb.Bids)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	asks, err := decodeLevels(cb.Asks)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	return domain.OrderBookSnapshot{
		Symbol:    cb.Symbol,
		Timestamp: time.Unix(0, cb.Timestamp).UTC(),
		Bids:      bids,
		Asks:      asks,
	}, nil
}

func decodeLevels(in []cachedLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		p, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", l.Price, err)
		}
		v, err := decimal.NewFromString(l.Volume)
		if err != nil {
			return nil, fmt.Errorf("volume %q: %w", l.Volume, err)
		}
		out = append(out, domain.PriceLevel{Price: p, Volume: v})
	}
	return out, nil
}

// SetSnapshot replaces the cached book for snap.Symbol atomically.
func (bc *BookCache) SetSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot %s: %w", snap.Symbol, err)
	}

	snapKey, bboKey := bc.snapshotKey(snap.Symbol), bc.bboKey(snap.Symbol)
	pipe := bc.c.rdb.TxPipeline()
	pipe.Set(ctx, snapKey, data, bc.ttl)
	pipe.Del(ctx, bboKey)
	fields := map[string]any{"ts": snap.Timestamp.UnixNano()}
	if len(snap.Bids) > 0 {
		fields["bid"] = snap.BestBid().String()
	}
	if len(snap.Asks) > 0 {
		fields["ask"] = snap.BestAsk().String()
	}
	pipe.HSet(ctx, bboKey, fields)
	if bc.ttl > 0 {
		pipe.Expire(ctx, bboKey, bc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshot returns the cached book or domain.ErrNotFound.
func (bc *BookCache) GetSnapshot(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	data, err := bc.c.rdb.Get(ctx, bc.snapshotKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OrderBookSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", symbol, err)
	}
	return snap, nil
}

// GetBBO returns the cached best bid and ask or domain.ErrNotFound.
func (bc *BookCache) GetBBO(ctx context.Context, symbol string) (bestBid, bestAsk decimal.Decimal, err error) {
	vals, err := bc.c.rdb.HGetAll(ctx, bc.bboKey(symbol)).Result()
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("redis: get bbo %s: %w", symbol, err)
	}
	bid, okBid := vals["bid"]
	ask, okAsk := vals["ask"]
	if !okBid || !okAsk {
		return decimal.Zero, decimal.Zero, domain.ErrNotFound
	}
	if bestBid, err = decimal.NewFromString(bid); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("redis: parse bbo bid %s: %w", symbol, err)
	}
	if bestAsk, err = decimal.NewFromString(ask); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("redis: parse bbo ask %s: %w", symbol, err)
	}
	return bestBid, bestAsk, nil
}
