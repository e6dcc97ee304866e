package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/hftbot/internal/blob/s3"
	"github.com/alanyoungcy/hftbot/internal/cache/redis"
	"github.com/alanyoungcy/hftbot/internal/config"
	"github.com/alanyoungcy/hftbot/internal/domain"
	"github.com/alanyoungcy/hftbot/internal/notify"
	"github.com/alanyoungcy/hftbot/internal/scoring"
	"github.com/alanyoungcy/hftbot/internal/service"
	"github.com/alanyoungcy/hftbot/internal/store/postgres"
	"github.com/alanyoungcy/hftbot/internal/store/sqlite"
)

// Dependencies bundles the infrastructure the modes run on. Every field is
// optional; a nil field means the backend is not configured.
type Dependencies struct {
	// Stores
	RunStore    domain.RunStore
	LedgerStore domain.LedgerStore
	AuditStore  domain.AuditStore
	SampleStore domain.SampleStore

	// Caches
	BookCache   domain.BookCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Scoring. Reloader is set when the model comes from a weights file.
	Scorer   domain.ScoringService
	Reloader *scoring.Reloader

	// Notifications
	Notifier service.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	deps := &Dependencies{}

	// --- Run, ledger, audit and sample stores ---
	switch {
	case cfg.Postgres.Enabled():
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.RunStore = postgres.NewRunStore(pool)
		deps.LedgerStore = postgres.NewLedgerStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.SampleStore = postgres.NewSampleStore(pool)
		logger.InfoContext(ctx, "postgres store ready")

	case cfg.SQLite.Path != "":
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail("sqlite", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		deps.RunStore = store
		deps.LedgerStore = store
		deps.AuditStore = store
		deps.SampleStore = store
		logger.InfoContext(ctx, "sqlite store ready", slog.String("path", cfg.SQLite.Path))
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BookCache = redis.NewBookCache(redisClient, cfg.Live.BookCacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
	}

	// --- S3 blob storage ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, uploads may fail",
				slog.String("error", err.Error()),
			)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter)
	}

	// --- Scoring service ---
	switch {
	case cfg.Scoring.ModelPath != "":
		source := scoring.FileSource(cfg.Scoring.ModelPath)
		if key, ok := scoring.IsBlobPath(cfg.Scoring.ModelPath); ok {
			if deps.BlobReader == nil {
				return fail("scoring", fmt.Errorf("%s needs [s3] configured", cfg.Scoring.ModelPath))
			}
			source = scoring.BlobSource(deps.BlobReader, key)
		}
		reloader, err := scoring.NewReloader(ctx, source, cfg.Scoring.ReloadInterval.Duration, logger)
		if err != nil {
			return fail("scoring", err)
		}
		deps.Scorer = reloader
		deps.Reloader = reloader
	case cfg.Scoring.URL != "":
		deps.Scorer = scoring.NewRemote(cfg.Scoring.URL, cfg.Scoring.Arity, cfg.Scoring.Timeout.Duration)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 && cfg.Notify.LogOnly {
		senders = append(senders, notify.NewLogSender(logger))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, notify.Options{
			Events:   cfg.Notify.Events,
			Prefix:   cfg.Notify.Prefix,
			Cooldown: cfg.Notify.Cooldown.Duration,
		}, logger)
	}

	return deps, cleanup, nil
}
