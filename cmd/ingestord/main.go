// Command ingestord runs the Telegram channel ingestion service: it
// subscribes to configured channels, stores every document artifact
// content-addressed, mines archive members for indicators of compromise,
// and persists everything idempotently to PostgreSQL.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/config"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/ingesterr"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config_invalid", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup, err := supervisor.Boot(ctx, cfg, logger)
	if err != nil {
		logger.Error("boot_failed", slog.String("error", err.Error()))
		if errors.Is(err, ingesterr.ErrConfigInvalid) {
			return 1
		}
		return 1
	}

	logger.Info("ingestord_started")
	if err := sup.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown_clean")
			return 0
		}
		logger.Error("run_failed", slog.String("error", err.Error()))
		if errors.Is(err, ingesterr.ErrAuthFailed) {
			return 2
		}
		if errors.Is(err, ingesterr.ErrConfigInvalid) {
			return 1
		}
		return 0
	}

	logger.Info("shutdown_clean")
	return 0
}
