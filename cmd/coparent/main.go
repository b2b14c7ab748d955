package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"coparent/internal/amqp"
	"coparent/internal/auth"
	"coparent/internal/cache"
	"coparent/internal/cli"
	apphttp "coparent/internal/http"
	"coparent/internal/log"
	"coparent/internal/notify"
	"coparent/internal/receipts"
	"coparent/internal/services"
	"coparent/internal/worker"
)

// fanout publishes to every target; the first failure is returned after all
// have been tried.
type fanout []services.Publisher

func (f fanout) Publish(ctx context.Context, env *amqp.Envelope) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, env); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	logger.Info("Starting coparent API")

	cfg := cli.LoadAndValidateConfig(logger)
	ctx := context.Background()

	store := cli.OpenStore(ctx, logger, cfg)
	email, sms := cli.Channels(ctx, logger, cfg)
	hub := notify.NewHub(logger)

	// Push has to run in this process since sockets live here. Email and SMS
	// go through the broker when one is configured.
	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		push := notify.NewDispatcher(store.Store, logger, hub)
		publisher = fanout{amqpClient, notify.NewInlinePublisher(push, logger)}
		logger.Info("Publishing events to AMQP", "exchange", cfg.AMQPExchange)
	} else {
		dispatcher := notify.NewDispatcher(store.Store, logger, hub, email, sms)
		publisher = notify.NewInlinePublisher(dispatcher, logger)
		logger.Info("AMQP disabled, delivering notifications in process", "channels", dispatcher.Channels())
	}

	cacheManager := cache.NewManager(logger)
	settlement := services.NewSettlementService(store.Store, store.Store, logger)
	cacheManager.Register(settlement.Cache())
	cacheManager.StartCleanup(5 * time.Minute)

	otp := auth.NewOTPManager(auth.OTPConfig{
		Cooldown:    cfg.OTPCooldown,
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
	})
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	expenses := services.NewExpenseService(store.Store, publisher, settlement, logger)
	scanner := receipts.NewScanner(cfg.AnthropicAPIKey, cfg.ReceiptModel, logger)

	svc := apphttp.Services{
		Auth:        services.NewAuthService(store.Store, tokens, otp, sms, logger),
		Accounts:    services.NewAccountService(store.Store, settlement, logger),
		Invitations: services.NewInvitationService(store.Store, settlement, cfg.InviteBaseURL(), logger, email, sms),
		Expenses:    expenses,
		Settlement:  settlement,
		Reports:     services.NewReportService(store.Store),
		Receipts:    services.NewReceiptService(scanner, store.Store, expenses),
		Hub:         hub,
		Store:       store.Store,
	}
	if !scanner.Enabled() {
		logger.Info("Receipt scanning disabled, no ANTHROPIC_API_KEY")
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		AllowedOrigins: cfg.FrontendOrigins(),
		Logger:         logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
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

	go worker.Every(ctx, time.Minute, worker.SweepJob("otp", otp, logger))

	logger.Info("Listening", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
