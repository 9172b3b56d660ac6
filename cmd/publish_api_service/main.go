package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/app"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/middleware"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/repository/postgres"
	transporthttp "github.com/quillpost/newsletter-gateway/internal/newsletter_service/transport/http"
	"github.com/quillpost/newsletter-gateway/internal/platform/config"
	"github.com/quillpost/newsletter-gateway/internal/platform/database"
	"github.com/quillpost/newsletter-gateway/internal/platform/logger"
)

func main() {
	cfg, err := config.Load("publish_api_service")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Publish API service starting...", "log_level", cfg.LogLevel)

	dbPool, err := database.NewDBPool(context.Background(), cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL database")

	idempotencyRepo := postgres.NewPgIdempotencyRepository(dbPool, appLogger)
	issueRepo := postgres.NewPgIssueRepository(dbPool, appLogger)
	publishService := app.NewPublishService(idempotencyRepo, issueRepo, appLogger)

	validate := validator.New()
	publishHandler := transporthttp.NewPublishHandler(publishService, appLogger, validate)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(transporthttp.PrometheusMetricsMiddleware)

	r.Get("/healthz", transporthttp.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger))
		r.Post("/newsletters", publishHandler.PublishNewsletter)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.PublishAPIPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("HTTP server listening", "port", cfg.PublishAPIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quitChan
	appLogger.Info("Shutdown signal received", "signal", receivedSignal.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Graceful shutdown failed", "error", err)
	}
	appLogger.Info("Publish API service shut down successfully.")
}
