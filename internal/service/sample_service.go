package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// SampleCollector stores a labeled feature tuple for every executed trade.
// The label is 1 when the trade was profitable. An external trainer reads
// the samples and publishes new model weights.
type SampleCollector struct {
	runID  string
	symbol string
	store  domain.SampleStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewSampleCollector creates a SampleCollector. store and bus may each be
// nil but not both.
func NewSampleCollector(runID, symbol string, store domain.SampleStore, bus domain.SignalBus, logger *slog.Logger) *SampleCollector {
	return &SampleCollector{
		runID:  runID,
		symbol: symbol,
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "sample_collector")),
	}
}

// Sample builds the training sample for a trade.
func Sample(runID, symbol string, trade domain.Trade, fv domain.FeatureVector) domain.TrainingSample {
	label := 0
	if trade.Profit.IsPositive() {
		label = 1
	}
	return domain.TrainingSample{
		RunID:      runID,
		Symbol:     symbol,
		Timestamp:  trade.Timestamp,
		FeatureSet: fv.Set,
		Features:   fv.Values(),
		Label:      label,
		Profit:     trade.Profit.InexactFloat64(),
	}
}

func (c *SampleCollector) OnSignal(context.Context, domain.Signal) {}

func (c *SampleCollector) OnReject(context.Context, domain.Signal, *domain.RiskLimitExceeded) {}

// OnTrade persists the sample for trade.
func (c *SampleCollector) OnTrade(ctx context.Context, trade domain.Trade, fv domain.FeatureVector) {
	s := Sample(c.runID, c.symbol, trade, fv)

	if c.store != nil {
		if err := c.store.Insert(ctx, s); err != nil {
			c.logger.WarnContext(ctx, "sample insert failed", slog.String("error", err.Error()))
		}
	}
	if c.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"run_id":      s.RunID,
			"symbol":      s.Symbol,
			"timestamp":   s.Timestamp.Format(time.RFC3339Nano),
			"feature_set": string(s.FeatureSet),
			"features":    s.Features,
			"label":       s.Label,
			"profit":      s.Profit,
		})
		if err := c.bus.StreamAppend(ctx, domain.StreamSamples, payload); err != nil {
			c.logger.WarnContext(ctx, "sample stream append failed", slog.String("error", err.Error()))
		}
	}
}
