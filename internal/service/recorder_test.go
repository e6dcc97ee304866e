package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/metrics"
)

type busMsg struct {
	target  string
	payload string
}

type fakeBus struct {
	mu       sync.Mutex
	messages []busMsg
	fail     bool
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	return b.add(channel, payload)
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	return b.add(stream, payload)
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) add(target string, payload []byte) error {
	if b.fail {
		return errors.New("redis: connection refused")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, busMsg{target: target, payload: string(payload)})
	return nil
}

func (b *fakeBus) targets() []string {
	var out []string
	for _, m := range b.messages {
		out = append(out, m.target)
	}
	return out
}

type fakeLedgerStore struct {
	appended []int
	batches  map[string][]domain.Trade
}

func (s *fakeLedgerStore) InsertBatch(_ context.Context, runID string, trades []domain.Trade) error {
	if s.batches == nil {
		s.batches = map[string][]domain.Trade{}
	}
	s.batches[runID] = append(s.batches[runID], trades...)
	return nil
}

func (s *fakeLedgerStore) Append(_ context.Context, _ string, seq int, _ domain.Trade) error {
	s.appended = append(s.appended, seq)
	return nil
}

func (s *fakeLedgerStore) ListByRun(_ context.Context, runID string) ([]domain.Trade, error) {
	return s.batches[runID], nil
}

type fakeAudit struct{ entries []domain.AuditEntry }

func (a *fakeAudit) Log(_ context.Context, runID, event string, detail map[string]any) error {
	a.entries = append(a.entries, domain.AuditEntry{RunID: runID, Event: event, Detail: detail})
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return a.entries, nil
}

type fakeNotifier struct{ events []string }

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

type fakeSamples struct{ samples []domain.TrainingSample }

func (s *fakeSamples) Insert(_ context.Context, sample domain.TrainingSample) error {
	s.samples = append(s.samples, sample)
	return nil
}

func (s *fakeSamples) Count(context.Context, domain.FeatureSet) (int64, error) {
	return int64(len(s.samples)), nil
}

type fakeRuns struct {
	created  []domain.Run
	finished map[string]map[string]float64
}

func (r *fakeRuns) Create(_ context.Context, run domain.Run) error {
	r.created = append(r.created, run)
	return nil
}

func (r *fakeRuns) Finish(_ context.Context, id string, _ time.Time, m map[string]float64, _ bool) error {
	if r.finished == nil {
		r.finished = map[string]map[string]float64{}
	}
	r.finished[id] = m
	return nil
}

func (r *fakeRuns) GetByID(context.Context, string) (domain.Run, error) {
	return domain.Run{}, domain.ErrNotFound
}

type fakeArchiver struct{ got domain.RunArtifacts }

func (a *fakeArchiver) ArchiveRun(_ context.Context, art domain.RunArtifacts) (string, error) {
	a.got = art
	return "runs/" + art.RunID, nil
}

func testTrade(profit string) domain.Trade {
	return domain.Trade{
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Side:      domain.SideBuy,
		Price:     dec("101"),
		Amount:    dec("0.01"),
		Profit:    dec(profit),
	}
}

func TestTradeRecorderFansOut(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{}
	store := &fakeLedgerStore{}
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	rec := NewTradeRecorder("run-1", TradeRecorderDeps{
		Trades: store, Bus: bus, Audit: audit, Notify: notifier,
	}, discardLogger())

	rec.OnSignal(ctx, signal(domain.SideBuy, "0.01"))
	rec.OnTrade(ctx, testTrade("0.01"), domain.FeatureVector{})
	rec.OnTrade(ctx, testTrade("-0.02"), domain.FeatureVector{})
	rec.OnReject(ctx, signal(domain.SideBuy, "0.01"), &domain.RiskLimitExceeded{Reason: domain.RiskReasonMaxPosition})

	assert.Equal(t, []int{0, 1}, store.appended)
	assert.Equal(t, []string{
		domain.ChannelSignal,
		domain.ChannelTrade, domain.StreamTrades,
		domain.ChannelTrade, domain.StreamTrades,
	}, bus.targets())
	assert.Contains(t, bus.messages[1].payload, `"profit":"0.01"`)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, EventRiskRejected, audit.entries[0].Event)
	assert.Equal(t, "max_position", audit.entries[0].Detail["reason"])
	assert.Equal(t, []string{EventTrade, EventTrade, EventRiskRejected}, notifier.events)
}

func TestTradeRecorderToleratesSinkFailures(t *testing.T) {
	rec := NewTradeRecorder("run-1", TradeRecorderDeps{Bus: &fakeBus{fail: true}}, discardLogger())
	assert.NotPanics(t, func() {
		rec.OnTrade(context.Background(), testTrade("1"), domain.FeatureVector{})
		rec.OnReject(context.Background(), domain.Signal{}, &domain.RiskLimitExceeded{Reason: domain.RiskReasonMaxLoss})
	})
}

func TestSampleCollectorLabels(t *testing.T) {
	ctx := context.Background()
	store := &fakeSamples{}
	bus := &fakeBus{}
	c := NewSampleCollector("run-1", "SOLUSDT", store, bus, discardLogger())

	fv := domain.FeatureVector{Set: domain.FeatureSetBasic, Imbalance: 0.5, Spread: 1, BidDepth: 3, AskDepth: 1}
	c.OnTrade(ctx, testTrade("0.01"), fv)
	c.OnTrade(ctx, testTrade("0"), fv)
	c.OnTrade(ctx, testTrade("-1"), fv)

	require.Len(t, store.samples, 3)
	assert.Equal(t, 1, store.samples[0].Label)
	assert.Equal(t, 0, store.samples[1].Label)
	assert.Equal(t, 0, store.samples[2].Label)
	assert.Equal(t, []float64{0.5, 1, 3, 1}, store.samples[0].Features)
	assert.Equal(t, "SOLUSDT", store.samples[0].Symbol)
	assert.Equal(t, []string{domain.StreamSamples, domain.StreamSamples, domain.StreamSamples}, bus.targets())
}

func TestRunServiceRecord(t *testing.T) {
	ctx := context.Background()
	runs := &fakeRuns{}
	store := &fakeLedgerStore{}
	arch := &fakeArchiver{}
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	svc := NewRunService(runs, store, arch, audit, notifier, discardLogger())

	trades := []domain.Trade{testTrade("10"), testTrade("-5")}
	m, err := metrics.Compute(trades, 1000)
	require.NoError(t, err)

	run := domain.Run{ID: "run-9", Mode: "backtest", Generator: "heuristic"}
	require.NoError(t, svc.Start(ctx, run))
	prefix, err := svc.Record(ctx, RunReport{Run: run, Trades: trades, Metrics: m}, false)
	require.NoError(t, err)

	assert.Equal(t, "runs/run-9", prefix)
	assert.Len(t, runs.created, 1)
	assert.Len(t, store.batches["run-9"], 2)
	assert.InDelta(t, 1005, runs.finished["run-9"]["final_balance"], 1e-9)
	assert.True(t, strings.HasPrefix(string(arch.got.Ledger), "timestamp,side,price,amount,profit\n"))
	assert.Contains(t, string(arch.got.Report), "Final Balance: 1005.0000")
	assert.Contains(t, string(arch.got.Metrics), "total_trades: 2")
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "run-9", audit.entries[0].RunID)
	assert.Equal(t, []string{EventBacktestComplete}, notifier.events)
}

func TestRunServiceSkipsStreamedLedger(t *testing.T) {
	store := &fakeLedgerStore{}
	svc := NewRunService(nil, store, nil, nil, nil, discardLogger())
	_, err := svc.Record(context.Background(), RunReport{
		Run:      domain.Run{ID: "live-1"},
		Trades:   []domain.Trade{testTrade("1")},
		NoTrades: false,
	}, true)
	require.NoError(t, err)
	assert.Empty(t, store.batches)
}

func TestArtifactsWithoutTrades(t *testing.T) {
	art, err := Artifacts(RunReport{Run: domain.Run{ID: "r"}, NoTrades: true})
	require.NoError(t, err)
	assert.Equal(t, "timestamp,side,price,amount,profit\n", string(art.Ledger))
	assert.Nil(t, art.Report)
	assert.Nil(t, art.Metrics)
}
