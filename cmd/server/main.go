package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/insider-one/mailcourier/internal/config"
	"github.com/insider-one/mailcourier/internal/dispatch"
	"github.com/insider-one/mailcourier/internal/domain"
	"github.com/insider-one/mailcourier/internal/handler"
	"github.com/insider-one/mailcourier/internal/middleware"
	"github.com/insider-one/mailcourier/internal/quota"
	"github.com/insider-one/mailcourier/internal/repository/postgres"
	"github.com/insider-one/mailcourier/internal/repository/redis"
	"github.com/insider-one/mailcourier/internal/service"
	"github.com/insider-one/mailcourier/internal/worker"
)

// @title Mailcourier API
// @version 1.0
// @description Email provider dispatch service

// @contact.name API Support
// @contact.email support@insider.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logLevel := slog.LevelInfo
	if cfg.App.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting mailcourier",
		"env", cfg.App.Env,
		"port", cfg.Server.Port,
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	// Apply schema migrations
	if cfg.Database.Migrate {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database schema up to date")
	}

	// Initialize Redis
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Initialize repositories
	providerRepo := postgres.NewProviderRepository(db)
	deliveryRepo := postgres.NewDeliveryRepository(db)
	quotaStore := postgres.NewQuotaStore(db)
	queue := redis.NewQueue(redisClient)

	// Initialize dispatch pipeline
	resolver := dispatch.NewResolver()
	validator := dispatch.NewValidator(resolver)
	guard := quota.NewGuard(quotaStore)
	executor := dispatch.NewExecutor(cfg.Dispatch)
	dispatcher := dispatch.NewDispatcher(resolver, guard, executor, cfg.Dispatch.Timeout, logger)

	// Initialize services
	providerService := service.NewProviderService(providerRepo, validator, logger)
	sendService := service.NewSendService(deliveryRepo, providerRepo, queue, logger)

	// Initialize WebSocket hub
	wsHub := handler.NewWebSocketHub(logger)
	go wsHub.Run()

	// Set up status broadcast
	statusBroadcast := func(d *domain.Delivery) {
		wsHub.BroadcastStatus(d)
	}
	sendService.SetStatusBroadcast(statusBroadcast)

	// Initialize metrics
	metrics := handler.NewMetrics()

	// Initialize worker processor
	processor := worker.NewProcessor(
		deliveryRepo,
		providerRepo,
		queue,
		dispatcher,
		logger,
		cfg.Retry,
		cfg.Worker,
	)
	processor.SetStatusBroadcast(statusBroadcast)
	processor.SetMetricsRecorder(metrics)

	// Initialize handlers
	providerHandler := handler.NewProviderHandler(providerService)
	sendHandler := handler.NewSendHandler(sendService)
	healthHandler := handler.NewHealthHandler()
	healthHandler.AddChecker("postgres", db)
	healthHandler.AddChecker("redis", redisClient)

	metricsHandler := handler.NewMetricsHandler(metrics, queue)
	wsHandler := handler.NewWebSocketHandler(wsHub)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Correlation)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(metrics))
	r.Use(chimiddleware.Compress(5))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	// Metrics endpoints
	r.Handle("/metrics", metricsHandler.Handler())
	r.Get("/metrics/realtime", metricsHandler.RealtimeMetrics)

	// WebSocket endpoint
	r.Get("/ws", wsHandler.HandleWebSocket)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/providers", func(r chi.Router) {
			providerHandler.RegisterRoutes(r)
		})

		r.Route("/send", func(r chi.Router) {
			sendHandler.RegisterSendRoutes(r)
		})

		r.Route("/deliveries", func(r chi.Router) {
			sendHandler.RegisterDeliveryRoutes(r)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start worker processor
	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start processor", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop processor (waits for in-flight work)
	processor.Stop()

	// Cancel context
	cancel()

	logger.Info("server stopped")
}
