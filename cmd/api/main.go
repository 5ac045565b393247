package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bayeshealth/diagnosis-api/internal/config"
	"github.com/bayeshealth/diagnosis-api/internal/handlers"
	"github.com/bayeshealth/diagnosis-api/internal/logging"
	"github.com/bayeshealth/diagnosis-api/internal/ratelimit"
	"github.com/bayeshealth/diagnosis-api/internal/recommend"
	"github.com/bayeshealth/diagnosis-api/internal/server"
	"github.com/bayeshealth/diagnosis-api/internal/storage/sqlite"
	"github.com/bayeshealth/diagnosis-api/internal/telemetry"
	"github.com/bayeshealth/diagnosis-api/internal/validation"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logger (general, error and API sinks)
	logger, err := logging.New("diagnosis-api", cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	// Initialize OpenTelemetry
	shutdownTracer, err := telemetry.InitTracer("diagnosis-api", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	// Open storage and seed the disease catalog
	store, err := sqlite.New(cfg.Storage.SQLite.Path)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	// Build the rate limiter from the configured per-class limits
	policies := make(map[ratelimit.Class]ratelimit.Policy, len(cfg.RateLimit.Classes))
	for class, limit := range cfg.RateLimit.Classes {
		policies[ratelimit.Class(class)] = ratelimit.PolicyPerMinute(limit)
	}
	limiter := ratelimit.New(policies,
		ratelimit.WithIdleEviction(cfg.RateLimit.IdleEvictionWindow()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go limiter.Run(ctx)

	validator := validation.New(cfg.Validation)

	recommendOpts := []recommend.ClientOption{
		recommend.WithRateLimit(cfg.Recommend.RPS, cfg.Recommend.Burst),
	}
	if cfg.Recommend.SSRFGuard {
		recommendOpts = append(recommendOpts, recommend.WithSSRFGuard())
	}
	recommender := recommend.NewClient(cfg.Recommend.BaseURL, cfg.Recommend.APIKey, recommendOpts...)

	srv := server.New(server.Options{
		Port:                 cfg.Server.Port,
		RequestTimeout:       cfg.Server.Timeout(),
		DenialAlertThreshold: cfg.RateLimit.DenialAlertThreshold,
		AdminKey:             cfg.Server.AdminKey,
	}, logger, limiter, validator)

	handlers.Register(srv, handlers.New(store, recommender, logger, limiter))

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	logger.Info("diagnosis API started", slog.Int("port", cfg.Server.Port))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
	}

	logger.Info("shutdown signal received, stopping server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
