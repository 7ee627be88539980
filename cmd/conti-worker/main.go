package main

import (
	"context"
	"os"
	"time"

	"conti/internal/cli"
	"conti/internal/log"
	"conti/internal/notify/discord"
	gsheet "conti/internal/sheets/google"
	"conti/internal/worker"
)

func main() {
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting conti-worker")

	if cfg.AMQPURL == "" {
		logger.Error("conti-worker needs AMQP_URL to receive group changes")
		os.Exit(1)
	}

	ctx := context.Background()
	rt := cli.NewRuntime(ctx, logger, cfg)
	if rt.AMQP == nil {
		rt.Close(logger)
		os.Exit(1)
	}

	opts := []worker.Option{worker.WithLogger(logger)}

	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			rt.Close(logger)
			os.Exit(1)
		}
		opts = append(opts, worker.WithExporter(sheetsClient))
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	if cfg.DiscordWebhookURL != "" {
		notifier, err := discord.New(cfg.DiscordWebhookURL)
		if err != nil {
			logger.Error("Failed to initialize Discord notifier", log.FieldError, err)
			rt.Close(logger)
			os.Exit(1)
		}
		opts = append(opts, worker.WithNotifier(notifier))
		logger.Info("Discord notifications enabled")
	}

	syncWorker := worker.NewSyncWorker(rt.Service, opts...)

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := syncWorker.Stop(ctx); err != nil {
			logger.Error("Worker shutdown error", log.FieldError, err)
		}
	})

	if err := syncWorker.Start(shutdownCtx, rt.AMQP); err != nil {
		logger.Error("Failed to start sync worker", log.FieldError, err)
		rt.Close(logger)
		os.Exit(1)
	}

	select {
	case <-shutdownCtx.Done():
	case <-syncWorker.Done():
	}
	if shutdownCtx.Err() != nil {
		cli.WaitForShutdown(shutdownCtx, done)
	} else {
		logger.Error("Sync worker stopped unexpectedly")
	}

	rt.Close(logger)
	logger.Info("conti-worker stopped")
}
