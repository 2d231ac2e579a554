package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	cfg "github.com/sand/custody-wallet/backend/config"
	"github.com/sand/custody-wallet/backend/internal/metrics"
	"github.com/sand/custody-wallet/backend/internal/network"
	repository "github.com/sand/custody-wallet/backend/internal/usecases/repository"
	"github.com/sand/custody-wallet/backend/internal/wallet"
	"github.com/sand/custody-wallet/backend/internal/workers"
	"github.com/sand/custody-wallet/backend/pkg/database"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/sand/custody-wallet/backend/internal/handlers"
	"github.com/sand/custody-wallet/backend/internal/usecases"
)

// Server timeout constants. Custody deposits wait for two receipts, so writes get more room.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 180
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

func main() {
	// Устанавливаем timezone UTC
	time.Local = time.UTC

	// Parse configuration
	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// Setup logging
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Определяем путь к миграциям
	migrationsPath := "./migrations"
	if workDir, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(workDir, "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "migrations")
		} else if _, err := os.Stat(filepath.Join(workDir, "..", "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "..", "migrations")
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Warn("Starting application with configuration",
		"debug", config.App.Debug,
		"network_ws_url", config.Network.WSURL,
		"session_chain", config.Network.SessionChain,
		"chains", len(config.Chains),
		"server_port", config.HTTP.Port)

	// Chain and asset tables
	registry, err := usecases.NewChainRegistry(config.Chains)
	if err != nil {
		logger.Error("Invalid chain configuration", "error", err)
		log.Fatal(err)
	}

	// Connect to Database
	pg, err := database.New(config,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(config.DB.ConnectTimeout),
		database.HealthCheckPeriod(config.DB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		slog.Error("postgres connection failed", slog.String("error", err.Error()))
		return
	}
	defer pg.Close()

	// Run database migrations
	logger.Info("Running database migrations", "path", migrationsPath)
	if err = database.RunMigrations(logger, config.DatabaseURL, migrationsPath); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		log.Fatal(err)
	}
	logger.Info("Database migrations completed successfully")

	// Create repositories
	walletsRepository := repository.NewWalletsRepository(logger, pg)
	operationsRepository := repository.NewCustodyOperationsRepository(logger, pg)
	snapshotsRepository := repository.NewBalanceSnapshotsRepository(logger, pg)

	// Wallets and external clients
	wallets, err := wallet.NewHDProvider(logger, config.Wallet.Seed, walletsRepository, registry)
	if err != nil {
		logger.Error("Failed to create wallet provider", "error", err)
		log.Fatal(err)
	}

	networkClient := network.NewClient(logger, config.Network, wallets)
	defer networkClient.Close()

	dialer := usecases.NewEthDialer(logger, registry)
	defer dialer.Close()

	// Create usecases
	onChain := usecases.NewOnChainService(logger, registry, dialer)
	coordinator := usecases.NewCustodyCreditCoordinator(logger, registry, networkClient, onChain)

	custodyService := usecases.NewCustodyService(logger, registry, wallets, networkClient, coordinator, operationsRepository)
	channelService := usecases.NewChannelService(logger, registry, wallets, networkClient, coordinator)
	sessionService := usecases.NewSessionService(logger, registry, wallets, networkClient, config.Network.SessionChain)
	balanceService := usecases.NewBalanceService(logger, registry, wallets, networkClient, snapshotsRepository)

	// Initialize and run workers
	initAndRunWorkers(ctx, logger, config, balanceService)

	// Create handlers
	httpHandler := handlers.NewHTTPHandler(logger, custodyService, channelService, sessionService, balanceService, wallets)

	// Create router
	router := mux.NewRouter()
	router.Use(metrics.Middleware)
	httpHandler.RegisterRoutes(router)

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Wrap router in CORS middleware
	handler := c.Handler(router)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			log.Fatal(err)
		}
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Stop workers
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited properly")
}

func initAndRunWorkers(
	ctx context.Context,
	logger *slog.Logger,
	config *cfg.Config,
	balanceService *usecases.BalanceService,
) {
	snapshotCleaner := workers.NewBalanceSnapshotCleaner(
		logger,
		balanceService,
		time.Duration(config.Workers.SnapshotTTL)*time.Minute,
		config.Workers.SnapshotCleanup,
	)

	// Start snapshot cleaner worker in a goroutine
	go func() {
		logger.Info("Starting balance snapshot cleaner worker")
		if err := snapshotCleaner.Start(ctx); err != nil {
			logger.Error("Balance snapshot cleaner failed", "error", err)
		}
	}()

	logger.Info("All workers initialized and started")
}
