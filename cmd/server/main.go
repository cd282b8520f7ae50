package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suji-games/leaderboard-service/internal/config"
	"github.com/suji-games/leaderboard-service/internal/handler"
	"github.com/suji-games/leaderboard-service/internal/kafka"
	"github.com/suji-games/leaderboard-service/internal/metrics"
	"github.com/suji-games/leaderboard-service/internal/postgres"
	"github.com/suji-games/leaderboard-service/internal/redis"
	"github.com/suji-games/leaderboard-service/internal/scheduler"
	"github.com/suji-games/leaderboard-service/internal/service"
	"github.com/suji-games/leaderboard-service/internal/wallet"
	"github.com/suji-games/leaderboard-service/internal/websocket"
	"github.com/suji-games/leaderboard-service/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	rankedSet := redis.NewRankedSet(redisClient, logger)
	directory := redis.NewDirectory(redisClient, logger)
	deduper := redis.NewDeduper(redisClient, cfg.Kafka.DedupTTL, logger)

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Prometheus registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Wallet collaborator
	walletClient := wallet.NewClient(&cfg.Wallet, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(&cfg.Websocket, logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Close scheduler and service reference each other; the scheduler gets a
	// late-bound closer so both can be constructed on the same pool.
	var leaderboardService *service.LeaderboardService
	closeScheduler, err := scheduler.NewService(ctx, repo.Pool(),
		scheduler.CloserFunc(func(ctx context.Context, leaderboardID string, cycle int64) error {
			return leaderboardService.CloseCycle(ctx, leaderboardID, cycle)
		}),
		&cfg.Queue, logger,
	)
	if err != nil {
		logger.Error("failed to create close scheduler", "error", err)
		os.Exit(1)
	}

	// Initialize services
	matchConfig := service.NewMatchConfig(cfg.Match)
	leaderboardService = service.NewLeaderboardService(
		rankedSet,
		directory,
		repo,
		closeScheduler,
		walletClient,
		deduper,
		matchConfig,
		&cfg.Leaderboard,
		m,
		logger,
	)
	leaderboardService.SetHub(wsHub)

	if err := closeScheduler.Start(ctx); err != nil {
		logger.Error("failed to start close scheduler", "error", err)
		os.Exit(1)
	}

	// Initialize snapshot worker
	snapshotWorker := worker.NewSnapshotWorker(rankedSet, repo, &cfg.Snapshot, logger)

	// Restore any lost ranked sets from the latest backup
	if err := snapshotWorker.RestoreMissing(ctx); err != nil {
		logger.Warn("failed to restore ranked sets on startup", "error", err)
	}

	// Start snapshot worker
	if cfg.Snapshot.Enabled {
		if err := snapshotWorker.Start(ctx); err != nil {
			logger.Error("failed to start snapshot worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for match-event intake
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, leaderboardService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	httpHandler := handler.NewHandler(leaderboardService, wsHub, metricsHandler, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop snapshot worker
	if err := snapshotWorker.Stop(); err != nil {
		logger.Error("failed to stop snapshot worker", "error", err)
	}

	// Stop close scheduler
	if err := closeScheduler.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop close scheduler", "error", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
