package main

import (
	"context"
	"os"
	"time"

	"coparent/internal/amqp"
	"coparent/internal/cli"
	"coparent/internal/log"
	"coparent/internal/notify"
	"coparent/internal/services"
	"coparent/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	store := cli.OpenStore(context.Background(), logger, cfg)

	// Spawned expenses announce themselves like any other; without a broker
	// the notifications are delivered from here.
	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		publisher = amqpClient
	} else {
		email, sms := cli.Channels(context.Background(), logger, cfg)
		publisher = notify.NewInlinePublisher(notify.NewDispatcher(store.Store, logger, email, sms), logger)
	}

	expenses := services.NewExpenseService(store.Store, publisher, nil, logger)
	processor := services.NewRecurringProcessor(store.Store, expenses, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
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

	logger.Info("Recurring expense processor configured", "interval", cfg.RecurringInterval)
	worker.Every(ctx, cfg.RecurringInterval, worker.RecurringJob(processor, logger))

	cli.WaitForShutdown(ctx, done)
}
