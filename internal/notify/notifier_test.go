package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSender struct {
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return "record" }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordSender{}
	n := NewNotifier([]Sender{s}, Options{Events: []string{"trade", " fatal "}, Prefix: "SOLUSDT"}, discard())

	require.NoError(t, n.Notify(context.Background(), "trade", "Trade executed", ""))
	require.NoError(t, n.Notify(context.Background(), "risk_rejected", "Signal rejected", ""))
	require.NoError(t, n.Notify(context.Background(), "fatal", "Trading stopped", ""))

	assert.Equal(t, []string{"[SOLUSDT] Trade executed", "[SOLUSDT] Trading stopped"}, s.titles)
}

func TestNotifierCooldown(t *testing.T) {
	s := &recordSender{}
	n := NewNotifier([]Sender{s}, Options{Cooldown: time.Minute}, discard())
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, "trade", "a", ""))
	require.NoError(t, n.Notify(ctx, "trade", "b", ""))
	require.NoError(t, n.Notify(ctx, "risk_rejected", "c", ""))
	now = now.Add(time.Minute)
	require.NoError(t, n.Notify(ctx, "trade", "d", ""))

	assert.Equal(t, []string{"a", "c", "d"}, s.titles)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	bad := &recordSender{err: errors.New("boom")}
	good := &recordSender{}
	n := NewNotifier([]Sender{bad, good}, Options{}, discard())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.titles, 1)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))

	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429: slow down")
}
