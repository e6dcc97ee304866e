// Command hftbot runs the order book imbalance bot. It loads configuration,
// validates it, sets up signal handling, and starts the configured mode:
// backtest, sweep, live or paper.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/hftbot/internal/app"
	"github.com/alanyoungcy/hftbot/internal/config"
	"github.com/alanyoungcy/hftbot/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (backtest, sweep, live, paper)")
	data := flag.String("data", "", "override the backtest dataset path (local or s3://)")
	encryptTo := flag.String("encrypt-secret", "", "encrypt HFTBOT_VENUE_API_SECRET with HFTBOT_VENUE_SECRET_PASSWORD into this file and exit")
	flag.Parse()

	if *encryptTo != "" {
		if err := encryptSecret(*encryptTo); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt secret: %v\n", err)
			os.Exit(1)
		}
		return
	}

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == "config.toml" {
		// Defaults plus environment are enough for a backtest.
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *data != "" {
		cfg.Backtest.DataPath = *data
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("hftbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", path),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("hftbot stopped")
}

func encryptSecret(path string) error {
	secret := os.Getenv("HFTBOT_VENUE_API_SECRET")
	password := os.Getenv("HFTBOT_VENUE_SECRET_PASSWORD")
	if secret == "" || password == "" {
		return errors.New("HFTBOT_VENUE_API_SECRET and HFTBOT_VENUE_SECRET_PASSWORD must be set")
	}
	sealed, err := crypto.EncryptSecret(secret, password)
	if err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}
