package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/features"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/forecast"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/handlers"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/scheduler"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/services"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("rainpro: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.New(logger.LogConfig{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting RainPro backend agent",
		"environment", cfg.Environment,
		"port", cfg.HTTP.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Trained artifacts load once and stay immutable for the process lifetime.
	artifacts, err := forecast.LoadArtifacts(cfg.Forecast)
	if err != nil {
		return fmt.Errorf("failed to load forecast artifacts: %w", err)
	}
	appLogger.Info("Forecast artifacts loaded",
		"daily_model", cfg.Forecast.DailyModelPath,
		"monthly_model", cfg.Forecast.MonthlyModelPath,
	)

	redisService, err := services.NewRedisService(cfg.Redis, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisService.Close()

	pool, err := storage.NewPool(ctx, cfg.Postgres, appLogger)
	if err != nil {
		return fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := storage.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return err
	}
	store := storage.NewStore(pool, appLogger)
	defer store.Close()

	aiService, err := services.NewGeminiService(cfg.Gemini, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini service: %w", err)
	}
	defer aiService.Close()

	powerService := services.NewPowerService(cfg.Power, appLogger)
	publisherService := services.NewPublisherService(cfg.Publisher, appLogger)
	geocodingService := services.NewGeocodingService(cfg.Geocoder, cfg.Forecast, appLogger)

	engineer := features.NewEngineer(appLogger)
	forecaster := forecast.NewForecaster(artifacts, appLogger)
	bucketer := forecast.NewBucketer(cfg.Forecast.WeekAnchor)

	orchestrator := services.NewOrchestrator(
		redisService,
		aiService,
		powerService,
		publisherService,
		geocodingService,
		store,
		engineer,
		forecaster,
		bucketer,
		*cfg,
		appLogger,
	)
	defer orchestrator.Close()

	sched := scheduler.New(cfg.Scheduler, orchestrator, appLogger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	workflowHandler := handlers.NewWorkflowHandler(orchestrator, store.UserQueries, appLogger)
	forecastHandler := handlers.NewForecastHandler(store.Forecasts, redisService, appLogger)
	router := handlers.NewRouter(workflowHandler, forecastHandler, appLogger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("HTTP server shutdown failed")
	}

	appLogger.Info("RainPro backend agent stopped")
	return nil
}
