package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HFTBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HFTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. Secrets
// are normally injected this way rather than written to the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Symbol, "HFTBOT_SYMBOL")

	// ── Venue ──
	setStr(&cfg.Venue.BaseURL, "HFTBOT_VENUE_BASE_URL")
	setStr(&cfg.Venue.StreamURL, "HFTBOT_VENUE_STREAM_URL")
	setStr(&cfg.Venue.APIKey, "HFTBOT_VENUE_API_KEY")
	setStr(&cfg.Venue.APISecret, "HFTBOT_VENUE_API_SECRET")
	setStr(&cfg.Venue.EncryptedSecretPath, "HFTBOT_VENUE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Venue.SecretPassword, "HFTBOT_VENUE_SECRET_PASSWORD")
	setInt64(&cfg.Venue.RecvWindow, "HFTBOT_VENUE_RECV_WINDOW")

	// ── Signal ──
	setStr(&cfg.Signal.Generator, "HFTBOT_SIGNAL_GENERATOR")
	setFloat64(&cfg.Signal.MinImbalance, "HFTBOT_SIGNAL_MIN_IMBALANCE_THRESHOLD")
	setFloat64(&cfg.Signal.ModelConfidence, "HFTBOT_SIGNAL_MODEL_CONFIDENCE")
	setStr(&cfg.Signal.OrderQuantity, "HFTBOT_SIGNAL_ORDER_QUANTITY")

	// ── Risk ──
	setStr(&cfg.Risk.MaxPosition, "HFTBOT_RISK_MAX_POSITION")
	setStr(&cfg.Risk.MaxLoss, "HFTBOT_RISK_MAX_LOSS")

	// ── Scoring ──
	setStr(&cfg.Scoring.ModelPath, "HFTBOT_SCORING_MODEL_PATH")
	setStr(&cfg.Scoring.URL, "HFTBOT_SCORING_URL")
	setDuration(&cfg.Scoring.ReloadInterval, "HFTBOT_SCORING_RELOAD_INTERVAL")

	// ── Backtest ──
	setStr(&cfg.Backtest.DataPath, "HFTBOT_BACKTEST_DATA_PATH")
	setFloat64(&cfg.Backtest.InitialBalance, "HFTBOT_BACKTEST_INITIAL_BALANCE")
	setStr(&cfg.Backtest.FillModel, "HFTBOT_BACKTEST_FILL_MODEL")

	// ── Live ──
	setInt(&cfg.Live.MaxRetries, "HFTBOT_LIVE_MAX_RETRIES")
	setFloat64(&cfg.Live.BackoffFactor, "HFTBOT_LIVE_BACKOFF_FACTOR")
	setFloat64(&cfg.Live.BackoffJitter, "HFTBOT_LIVE_BACKOFF_JITTER")
	setBool(&cfg.Live.CollectSamples, "HFTBOT_LIVE_COLLECT_SAMPLES")

	// ── Log ──
	setStr(&cfg.Log.File, "HFTBOT_LOG_FILE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HFTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HFTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HFTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HFTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HFTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HFTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HFTBOT_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "HFTBOT_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "HFTBOT_SQLITE_PATH")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HFTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HFTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HFTBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "HFTBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "HFTBOT_REDIS_NAMESPACE")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HFTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HFTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "HFTBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "HFTBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "HFTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HFTBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HFTBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HFTBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HFTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HFTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HFTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HFTBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HFTBOT_MODE")
	setStr(&cfg.LogLevel, "HFTBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
