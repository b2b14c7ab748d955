package main

import (
	"context"
	"os"
	"sync"
	"time"

	"coparent/internal/amqp"
	"coparent/internal/cli"
	"coparent/internal/log"
	"coparent/internal/notify"
	"coparent/internal/services"
	gsheet "coparent/internal/sheets/google"
	"coparent/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting coparent-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" && !cfg.SheetsEnabled() {
		logger.Error("Nothing to do: set AMQP_URL and/or GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}
	store := cli.OpenStore(context.Background(), logger, cfg)

	var amqpClient *amqp.Client
	var mirror *services.MirrorProcessor

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if mirror != nil {
			if err := mirror.Stop(shutdownCtx); err != nil {
				logger.Warn("Stopping mirror processor", log.FieldError, err)
			}
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Closing AMQP client", log.FieldError, err)
			}
		}
		if store.Cleanup != nil {
			if err := store.Cleanup(); err != nil {
				logger.Warn("Closing store", log.FieldError, err)
			}
		}
	})

	var wg sync.WaitGroup

	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		email, sms := cli.Channels(ctx, logger, cfg)
		dispatcher := notify.NewDispatcher(store.Store, logger, email, sms)
		w := worker.NewNotificationWorker(amqpClient, dispatcher, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
		logger.Info("Consuming notification events", "queue", cfg.AMQPQueue, "channels", dispatcher.Channels())
	}

	if cfg.SheetsEnabled() {
		sheetsClient, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, cfg.GoogleCredentialsJSON)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		if err := sheetsClient.EnsureHeader(ctx); err != nil {
			logger.Warn("Could not write sheet header", log.FieldError, err)
		}
		mirror = services.NewMirrorProcessor(store.Store, sheetsClient, services.MirrorProcessorConfig{
			BatchSize:    cfg.SyncBatchSize,
			PollInterval: cfg.SyncInterval,
		}, logger)
		if err := mirror.Start(ctx); err != nil {
			logger.Error("Failed to start mirror processor", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Mirroring expenses to Google Sheets",
			"spreadsheet_id", cfg.GoogleSpreadsheetID, "interval", cfg.SyncInterval)
	}

	cli.WaitForShutdown(ctx, done)
	wg.Wait()
	logger.Info("Worker stopped gracefully")
}
