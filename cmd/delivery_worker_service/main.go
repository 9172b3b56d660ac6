package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/adapters/emailclient"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/app"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/repository/postgres"
	"github.com/quillpost/newsletter-gateway/internal/platform/config"
	"github.com/quillpost/newsletter-gateway/internal/platform/database"
	"github.com/quillpost/newsletter-gateway/internal/platform/logger"
)

func main() {
	cfg, err := config.Load("delivery_worker_service")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Delivery worker service starting...", "log_level", cfg.LogLevel)

	dbPool, err := database.NewDBPool(context.Background(), cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL database")

	queueRepo := postgres.NewPgDeliveryQueueRepository(dbPool, appLogger)
	emailClient := emailclient.NewHTTPEmailClient(
		appLogger,
		cfg.EmailAPIBaseURL,
		cfg.EmailAPIToken,
		cfg.EmailSenderAddress,
		time.Duration(cfg.EmailSendTimeoutSeconds)*time.Second,
		nil,
	)

	worker := app.NewDeliveryWorker(queueRepo, emailClient, appLogger, app.WorkerConfig{
		PollInterval: time.Duration(cfg.WorkerPollIntervalSeconds) * time.Second,
		ErrorSleep:   time.Duration(cfg.WorkerErrorSleepSeconds) * time.Second,
		MaxRetries:   cfg.WorkerMaxRetries,
		RetryBase:    time.Duration(cfg.WorkerRetryBaseSeconds) * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quitChan := make(chan os.Signal, 1)
		signal.Notify(quitChan, syscall.SIGINT, syscall.SIGTERM)
		receivedSignal := <-quitChan
		appLogger.Info("Shutdown signal received", "signal", receivedSignal.String())
		cancel()
	}()

	if err := worker.Run(ctx); err != nil {
		appLogger.Error("Delivery worker exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Delivery worker service shut down successfully.")
}
