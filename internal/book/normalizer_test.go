package book

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

func TestNormalizeArrayLevels(t *testing.T) {
	n := NewNormalizer("SOLUSDT")
	snap, err := n.NormalizeJSON([]byte(`{
		"timestamp": "2024-03-01T12:00:00Z",
		"bids": [["99.5", "2"], [100, 1]],
		"asks": [[101, "1.5"], ["100.5", 3]]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "SOLUSDT", snap.Symbol)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), snap.Timestamp)
	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 2)
	assert.Equal(t, "100", snap.BestBid().String())
	assert.Equal(t, "100.5", snap.BestAsk().String())
	assert.Equal(t, "99.5", snap.Bids[1].Price.String())
	assert.Equal(t, "1.5", snap.Asks[1].Volume.String())
}

func TestNormalizeObjectLevelsVolumeAliases(t *testing.T) {
	n := NewNormalizer("SOLUSDT")
	snap, err := n.NormalizeJSON([]byte(`{
		"timestamp": "2024-03-01 12:00:00.250",
		"bids": [{"price": 100, "qty": 4}],
		"asks": [{"price": "101", "volume": "2"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "4", snap.Bids[0].Volume.String())
	assert.Equal(t, "2", snap.Asks[0].Volume.String())
	assert.Equal(t, 250*time.Millisecond, time.Duration(snap.Timestamp.Nanosecond()))
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing timestamp", `{"bids": [[100, 1]], "asks": [[101, 1]]}`},
		{"bad timestamp", `{"timestamp": "yesterday", "bids": [[100, 1]], "asks": [[101, 1]]}`},
		{"absent bids", `{"timestamp": "2024-03-01T12:00:00Z", "asks": [[101, 1]]}`},
		{"absent asks", `{"timestamp": "2024-03-01T12:00:00Z", "bids": [[100, 1]]}`},
		{"missing volume", `{"timestamp": "2024-03-01T12:00:00Z", "bids": [[100]], "asks": [[101, 1]]}`},
		{"missing price", `{"timestamp": "2024-03-01T12:00:00Z", "bids": [{"qty": 1}], "asks": [[101, 1]]}`},
		{"negative volume", `{"timestamp": "2024-03-01T12:00:00Z", "bids": [[100, -1]], "asks": [[101, 1]]}`},
		{"crossed", `{"timestamp": "2024-03-01T12:00:00Z", "bids": [[102, 1]], "asks": [[101, 1]]}`},
		{"locked", `{"timestamp": "2024-03-01T12:00:00Z", "bids": [[101, 1]], "asks": [[101, 1]]}`},
		{"not json", `{"timestamp":`},
	}

	n := NewNormalizer("SOLUSDT")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := n.NormalizeJSON([]byte(tt.payload))
			require.Error(t, err)

			var mbe *domain.MalformedBookError
			assert.True(t, errors.As(err, &mbe), "want MalformedBookError, got %T", err)
			assert.Empty(t, snap.Bids)
			assert.Empty(t, snap.Asks)
		})
	}
}

func TestNormalizeAcceptsEmptySide(t *testing.T) {
	n := NewNormalizer("SOLUSDT")
	snap, err := n.NormalizeJSON([]byte(`{"timestamp": "2024-03-01T12:00:00Z", "bids": [], "asks": [[101, 1]]}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
	assert.Len(t, snap.Asks, 1)
}

func TestNormalizeKeepsPayloadSymbol(t *testing.T) {
	n := NewNormalizer("SOLUSDT")
	snap, err := n.NormalizeJSON([]byte(`{"symbol": "BTCUSDT", "timestamp": "2024-03-01T12:00:00+02:00", "bids": [[1, 1]], "asks": [[2, 1]]}`))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, 10, snap.Timestamp.Hour())
}
