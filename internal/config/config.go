// Package config defines the top-level configuration for the imbalance bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HFTBOT_* environment variables.
type Config struct {
	Symbol   string         `toml:"symbol"`
	Venue    VenueConfig    `toml:"venue"`
	Signal   SignalConfig   `toml:"signal"`
	Feature  FeatureConfig  `toml:"feature"`
	Risk     RiskConfig     `toml:"risk"`
	Scoring  ScoringConfig  `toml:"scoring"`
	Backtest BacktestConfig `toml:"backtest"`
	Live     LiveConfig     `toml:"live"`
	Log      LogConfig      `toml:"log"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// VenueConfig holds exchange endpoints and API credentials.
type VenueConfig struct {
	BaseURL   string `toml:"base_url"`
	StreamURL string `toml:"stream_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	// EncryptedSecretPath points to a file written by crypto.EncryptSecret.
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password"`
	RecvWindow          int64    `toml:"recv_window"`
	Timeout             duration `toml:"timeout"`
	// MaxOrders orders per OrderWindow, enforced through Redis when
	// configured.
	MaxOrders   int      `toml:"max_orders"`
	OrderWindow duration `toml:"order_window"`
}

// SignalConfig holds the signal generator parameters.
type SignalConfig struct {
	Generator       string  `toml:"generator"`
	MinImbalance    float64 `toml:"min_imbalance_threshold"`
	SpreadThreshold float64 `toml:"spread_threshold"`
	ModelConfidence float64 `toml:"model_confidence"`
	ProfitTargetPct float64 `toml:"profit_target_pct"`
	StopLossPct     float64 `toml:"stop_loss_pct"`
	PositionSizePct float64 `toml:"position_size_pct"`
	OrderQuantity   string  `toml:"order_quantity"`
}

// FeatureConfig controls feature extraction.
type FeatureConfig struct {
	Set            string `toml:"set"`
	Imbalance      string `toml:"imbalance"`
	ImbalanceDepth int    `toml:"imbalance_depth"`
	DepthLevels    int    `toml:"depth_levels"`
	LiquidityDepth int    `toml:"liquidity_depth"`
}

// RiskConfig holds position and loss limits. Decimal values are strings so
// they are parsed exactly.
type RiskConfig struct {
	MaxPosition string `toml:"max_position"`
	MaxLoss     string `toml:"max_loss"`
}

// ScoringConfig selects the scoring service. ModelPath is a local file or an
// s3:// URL holding logistic weights; URL is a remote scoring endpoint.
type ScoringConfig struct {
	ModelPath      string   `toml:"model_path"`
	URL            string   `toml:"url"`
	Arity          int      `toml:"arity"`
	Timeout        duration `toml:"timeout"`
	ReloadInterval duration `toml:"reload_interval"`
}

// BacktestConfig holds the replay settings.
type BacktestConfig struct {
	DataPath       string          `toml:"data_path"`
	InitialBalance float64         `toml:"initial_balance"`
	FillModel      string          `toml:"fill_model"`
	LedgerPath     string          `toml:"ledger_path"`
	ReportPath     string          `toml:"report_path"`
	MetricsPath    string          `toml:"metrics_path"`
	Variants       []VariantConfig `toml:"variants"`
}

// VariantConfig is one sweep entry. Zero values inherit the base config.
type VariantConfig struct {
	Name         string  `toml:"name"`
	Generator    string  `toml:"generator"`
	MinImbalance float64 `toml:"min_imbalance_threshold"`
	Confidence   float64 `toml:"model_confidence"`
	FeatureSet   string  `toml:"feature_set"`
	Imbalance    string  `toml:"imbalance"`
	FillModel    string  `toml:"fill_model"`
}

// LiveConfig holds live-loop parameters.
type LiveConfig struct {
	DepthLevels int      `toml:"depth_levels"`
	FastUpdates bool     `toml:"fast_updates"`
	MaxRetries  int      `toml:"max_retries"`
	BackoffMin  duration `toml:"backoff_min"`
	BackoffMax  duration `toml:"backoff_max"`
	// BackoffFactor multiplies the delay per consecutive failure; BackoffJitter
	// is the +/- fraction applied to each delay.
	BackoffFactor float64  `toml:"backoff_factor"`
	BackoffJitter float64  `toml:"backoff_jitter"`
	LockTTL       duration `toml:"lock_ttl"`
	DedupTTL      duration `toml:"dedup_ttl"`
	BookCacheTTL  duration `toml:"book_cache_ttl"`
	LedgerPath    string   `toml:"ledger_path"`
	// CollectSamples stores a labeled feature tuple per executed trade.
	CollectSamples bool `toml:"collect_samples"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// PostgresConfig holds PostgreSQL connection parameters. Postgres is used
// when DSN or Host is set.
type PostgresConfig struct {
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// Enabled reports whether a PostgreSQL server is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || p.Host != ""
}

// SQLiteConfig configures the local store used without PostgreSQL. An empty
// Path disables it.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables
// Redis.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	Namespace    string `toml:"namespace"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// disables object storage.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Prefix            string   `toml:"prefix"`
	Cooldown          duration `toml:"cooldown"`
	// LogOnly delivers notifications to the log instead of a chat service.
	LogOnly bool `toml:"log_only"`
}

// Defaults returns a Config populated with the production defaults.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Symbol: "SOLUSDT",
		Venue: VenueConfig{
			BaseURL:     "https://api.binance.com",
			StreamURL:   "wss://stream.binance.com:9443",
			RecvWindow:  5000,
			Timeout:     duration{10 * time.Second},
			MaxOrders:   10,
			OrderWindow: duration{time.Second},
		},
		Signal: SignalConfig{
			Generator:       "heuristic",
			MinImbalance:    0.15,
			SpreadThreshold: 0.002,
			ModelConfidence: 0.6,
			ProfitTargetPct: 0.002,
			StopLossPct:     0.001,
			PositionSizePct: 0.01,
			OrderQuantity:   "0.01",
		},
		Feature: FeatureConfig{
			Set:            "basic",
			Imbalance:      "volume_ratio",
			ImbalanceDepth: 5,
			DepthLevels:    10,
			LiquidityDepth: 3,
		},
		Risk: RiskConfig{
			MaxPosition: "0.1",
			MaxLoss:     "-500",
		},
		Scoring: ScoringConfig{
			Timeout:        duration{2 * time.Second},
			ReloadInterval: duration{time.Hour},
		},
		Backtest: BacktestConfig{
			DataPath:       "data/datasets/solusdt_historical_data.csv",
			InitialBalance: 10000,
			FillModel:      "spread_capture",
			LedgerPath:     "data/backtest_trades.csv",
			ReportPath:     "data/backtest_report.txt",
			MetricsPath:    "data/backtest_metrics.yaml",
		},
		Live: LiveConfig{
			DepthLevels:   20,
			FastUpdates:   true,
			MaxRetries:    10,
			BackoffMin:    duration{250 * time.Millisecond},
			BackoffMax:    duration{30 * time.Second},
			BackoffFactor: 2.0,
			BackoffJitter: 0.2,
			LockTTL:       duration{5 * time.Second},
			DedupTTL:      duration{time.Minute},
			BookCacheTTL:  duration{10 * time.Second},
			LedgerPath:    "data/live_trades.csv",
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Postgres: PostgresConfig{
			Port:           5432,
			SSLMode:        "prefer",
			PoolMaxConns:   10,
			PoolMinConns:   1,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		SQLite: SQLiteConfig{
			Path: "data/hftbot.db",
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MaxRetries:   3,
			Namespace:    "hftbot",
			StreamMaxLen: 100000,
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events:   []string{"risk_rejected", "fatal", "backtest_complete"},
			Cooldown: duration{30 * time.Second},
		},
		Mode:     "backtest",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"backtest": true,
	"sweep":    true,
	"live":     true,
	"paper":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validFillModels = map[string]bool{
	"spread_capture": true,
	"next_tick":      true,
}

var validGenerators = map[string]bool{
	"heuristic":   true,
	"probability": true,
}

var validFeatureSets = map[string]bool{
	"basic":    true,
	"extended": true,
}

var validImbalance = map[string]bool{
	"volume_ratio": true,
	"mid_distance": true,
}

var validEvents = map[string]bool{
	"trade":             true,
	"risk_rejected":     true,
	"fatal":             true,
	"backtest_complete": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: backtest, sweep, live, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, "symbol must not be empty")
	}

	// Signal
	if !validGenerators[c.Signal.Generator] {
		errs = append(errs, fmt.Sprintf("signal: unknown generator %q (valid: heuristic, probability)", c.Signal.Generator))
	}
	if c.Signal.MinImbalance < 0 || c.Signal.MinImbalance >= 1 {
		errs = append(errs, "signal: min_imbalance_threshold must be in [0, 1)")
	}
	if c.Signal.ModelConfidence < 0 || c.Signal.ModelConfidence > 1 {
		errs = append(errs, "signal: model_confidence must be in [0, 1]")
	}
	if q, ok := parsePositive(c.Signal.OrderQuantity); !ok {
		errs = append(errs, fmt.Sprintf("signal: order_quantity must be a positive decimal, got %q", q))
	}
	if c.Signal.Generator == "probability" && c.Scoring.ModelPath == "" && c.Scoring.URL == "" {
		errs = append(errs, "scoring: model_path or url is required for the probability generator")
	}

	// Feature
	if !validFeatureSets[c.Feature.Set] {
		errs = append(errs, fmt.Sprintf("feature: unknown set %q (valid: basic, extended)", c.Feature.Set))
	}
	if !validImbalance[c.Feature.Imbalance] {
		errs = append(errs, fmt.Sprintf("feature: unknown imbalance %q (valid: volume_ratio, mid_distance)", c.Feature.Imbalance))
	}
	if c.Feature.ImbalanceDepth < 1 || c.Feature.DepthLevels < 1 || c.Feature.LiquidityDepth < 1 {
		errs = append(errs, "feature: imbalance_depth, depth_levels and liquidity_depth must be >= 1")
	}

	// Risk
	if _, ok := parsePositive(c.Risk.MaxPosition); !ok {
		errs = append(errs, fmt.Sprintf("risk: max_position must be a positive decimal, got %q", c.Risk.MaxPosition))
	}
	if !isDecimal(c.Risk.MaxLoss) {
		errs = append(errs, fmt.Sprintf("risk: max_loss must be a decimal, got %q", c.Risk.MaxLoss))
	}

	// Scoring
	if c.Scoring.URL != "" && c.Scoring.Arity < 1 {
		errs = append(errs, "scoring: arity must be >= 1 when url is set")
	}

	// Backtest
	if mode == "backtest" || mode == "sweep" {
		if c.Backtest.DataPath == "" {
			errs = append(errs, "backtest: data_path must not be empty")
		}
		if c.Backtest.InitialBalance <= 0 {
			errs = append(errs, "backtest: initial_balance must be > 0")
		}
		if !validFillModels[c.Backtest.FillModel] {
			errs = append(errs, fmt.Sprintf("backtest: unknown fill_model %q (valid: spread_capture, next_tick)", c.Backtest.FillModel))
		}
	}
	if mode == "sweep" && len(c.Backtest.Variants) == 0 {
		errs = append(errs, "backtest: sweep mode needs at least one [[backtest.variants]] entry")
	}
	for i, v := range c.Backtest.Variants {
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("backtest: variants[%d]: name must not be empty", i))
		}
		if v.Generator != "" && !validGenerators[v.Generator] {
			errs = append(errs, fmt.Sprintf("backtest: variants[%d]: unknown generator %q", i, v.Generator))
		}
		if v.FillModel != "" && !validFillModels[v.FillModel] {
			errs = append(errs, fmt.Sprintf("backtest: variants[%d]: unknown fill_model %q", i, v.FillModel))
		}
		if v.FeatureSet != "" && !validFeatureSets[v.FeatureSet] {
			errs = append(errs, fmt.Sprintf("backtest: variants[%d]: unknown feature_set %q", i, v.FeatureSet))
		}
		if v.Imbalance != "" && !validImbalance[v.Imbalance] {
			errs = append(errs, fmt.Sprintf("backtest: variants[%d]: unknown imbalance %q", i, v.Imbalance))
		}
	}

	// Venue and live loop
	if mode == "live" || mode == "paper" {
		if c.Venue.BaseURL == "" || c.Venue.StreamURL == "" {
			errs = append(errs, "venue: base_url and stream_url must not be empty")
		}
		if c.Live.DepthLevels != 5 && c.Live.DepthLevels != 10 && c.Live.DepthLevels != 20 {
			errs = append(errs, fmt.Sprintf("live: depth_levels must be 5, 10 or 20, got %d", c.Live.DepthLevels))
		}
		if c.Live.MaxRetries < 0 {
			errs = append(errs, "live: max_retries must be >= 0")
		}
		if c.Live.BackoffMin.Duration <= 0 || c.Live.BackoffMax.Duration < c.Live.BackoffMin.Duration {
			errs = append(errs, "live: backoff_min must be > 0 and not exceed backoff_max")
		}
		if c.Live.BackoffFactor <= 1 {
			errs = append(errs, fmt.Sprintf("live: backoff_factor must be > 1, got %v", c.Live.BackoffFactor))
		}
		if c.Live.BackoffJitter < 0 || c.Live.BackoffJitter >= 1 {
			errs = append(errs, fmt.Sprintf("live: backoff_jitter must be in [0,1), got %v", c.Live.BackoffJitter))
		}
	}
	if mode == "live" {
		if c.Venue.APIKey == "" {
			errs = append(errs, "venue: api_key is required for live mode")
		}
		if c.Venue.APISecret == "" && c.Venue.EncryptedSecretPath == "" {
			errs = append(errs, "venue: either api_secret or encrypted_secret_path must be set for live mode")
		}
	}
	if c.Venue.EncryptedSecretPath != "" && c.Venue.SecretPassword == "" {
		errs = append(errs, "venue: secret_password is required when encrypted_secret_path is set")
	}

	// Postgres
	if c.Postgres.Enabled() {
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if !validEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
