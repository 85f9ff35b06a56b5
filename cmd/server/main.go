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

	"github.com/snakebase/snakebase/internal/auth"
	"github.com/snakebase/snakebase/internal/chain"
	"github.com/snakebase/snakebase/internal/config"
	"github.com/snakebase/snakebase/internal/handler"
	"github.com/snakebase/snakebase/internal/kafka"
	"github.com/snakebase/snakebase/internal/kvstore"
	"github.com/snakebase/snakebase/internal/postgres"
	"github.com/snakebase/snakebase/internal/service"
	"github.com/snakebase/snakebase/internal/store"
	"github.com/snakebase/snakebase/internal/websocket"
	"github.com/snakebase/snakebase/internal/worker"
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

	// Initialize the key-value store
	var kv kvstore.Store
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisStore, err := kvstore.NewRedis(&cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		kv = redisStore
		logger.Info("connected to Redis")
	} else {
		logger.Info("Redis disabled, using in-process memory store")
		kv = kvstore.NewMemory()
	}
	defer kv.Close()

	// Initialize the stores
	users := store.NewUsers(kv, logger)
	scores := store.NewScores(kv, users, cfg.Leaderboard.CacheTTL, logger)
	nonces := store.NewNonces(kv, logger)
	sessions := store.NewSessions(kv, cfg.Auth.SessionTTL)

	// Initialize the PostgreSQL archive
	var archive *postgres.Archive
	var auditor service.Auditor
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		archive, err = postgres.NewArchive(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer archive.Close()
		logger.Info("connected to PostgreSQL")

		if err := archive.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		auditor = archive
	}

	// Initialize the on-chain submitter
	var chainSubmitter service.ChainSubmitter
	if cfg.Chain.Enabled {
		submitter, err := chain.NewEthSubmitter(&cfg.Chain, logger)
		if err != nil {
			logger.Warn("failed to initialize chain submitter, continuing without on-chain mirroring", "error", err)
		} else {
			defer submitter.Close()
			chainSubmitter = submitter
			logger.Info("on-chain mirroring enabled", "chain_id", cfg.Chain.ChainID, "contract", cfg.Chain.ContractAddress)
		}
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize the game service
	validator := auth.NewValidator(cfg.Auth.RequireSignature)
	gameService := service.NewGameService(
		validator,
		users,
		scores,
		nonces,
		sessions,
		auditor,
		chainSubmitter,
		wsHub,
		&cfg.Leaderboard,
		logger,
	)

	// Initialize the archive worker
	var archiveWorker *worker.ArchiveWorker
	if archive != nil {
		archiveWorker = worker.NewArchiveWorker(scores, archive, &cfg.Archive, logger)

		// Restore high scores from the archive on startup (recovery)
		logger.Info("restoring high scores from archive")
		if err := archiveWorker.RestoreFromArchive(ctx); err != nil {
			logger.Warn("failed to restore from archive on startup", "error", err)
		}

		if cfg.Archive.Enabled {
			if err := archiveWorker.Start(ctx); err != nil {
				logger.Error("failed to start archive worker", "error", err)
				os.Exit(1)
			}
		}
	}

	// Initialize Kafka consumer for streaming score ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, gameService, logger)
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

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(gameService, wsHub, logger)

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
		logger.Info("WebSocket endpoint available at /ws")
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

	// Stop archive worker, flushing one final cycle
	if archiveWorker != nil && archiveWorker.IsRunning() {
		if err := archiveWorker.Stop(); err != nil {
			logger.Error("failed to stop archive worker", "error", err)
		}
		archiveWorker.RunOnce(shutdownCtx)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
