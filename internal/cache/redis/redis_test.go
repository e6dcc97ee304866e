package redis

import (
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

func TestKeyNamespace(t *testing.T) {
	assert.Equal(t, "book:SOLUSDT:bbo", (&Client{}).Key("book", "SOLUSDT", "bbo"))
	assert.Equal(t, "hft:lock:risk:SOLUSDT", (&Client{namespace: "hft"}).Key("lock", "risk:SOLUSDT"))
}

func TestOptions(t *testing.T) {
	opts := options(ClientConfig{Addr: "localhost:6379", DB: 2, TLSEnabled: true})
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	require.NotNil(t, opts.TLSConfig)
	assert.Nil(t, options(ClientConfig{}).TLSConfig)
}

func TestSnapshotCodecKeepsPrecision(t *testing.T) {
	snap := domain.OrderBookSnapshot{
		Symbol:    "SOLUSDT",
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 123456789, time.UTC),
		Bids:      []domain.PriceLevel{{Price: decimal.RequireFromString("100.123456789"), Volume: decimal.RequireFromString("3")}},
		Asks:      []domain.PriceLevel{{Price: decimal.RequireFromString("100.2"), Volume: decimal.RequireFromString("0.0001")}},
	}
	data, err := encodeSnapshot(snap)
	require.NoError(t, err)

	got, err := decodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap.Timestamp, got.Timestamp)
	assert.Equal(t, "100.123456789", got.Bids[0].Price.String())
	assert.Equal(t, "0.0001", got.Asks[0].Volume.String())

	_, err = decodeSnapshot([]byte(`{"bids":[{"p":"x","v":"1"}]}`))
	assert.Error(t, err)
}

func TestStreamMessagesSkipsEntriesWithoutPayload(t *testing.T) {
	got := streamMessages([]goredis.XMessage{
		{ID: "1-0", Values: map[string]any{"payload": `{"a":1}`}},
		{ID: "2-0", Values: map[string]any{"other": "x"}},
		{ID: "3-0", Values: map[string]any{"payload": []byte("b")}},
	})
	assert.Equal(t, []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"a":1}`)},
		{ID: "3-0", Payload: []byte("b")},
	}, got)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
