package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stealthpay/internal/api"
	"stealthpay/internal/config"
	"stealthpay/internal/extraction"
	"stealthpay/internal/indexer"
	"stealthpay/internal/integration/rpc_backend"
	"stealthpay/internal/ledger"
	"stealthpay/internal/ledger/retry"
	"stealthpay/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("Starting stealthpay indexer...")

	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"rpc_server", cfg.RPCServerURL,
		"network", cfg.NetworkPassphrase,
		"registry", cfg.RegistryContractID,
		"store", cfg.StoreBackend,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Open the event store
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	defer store.Close()
	slog.Info("Event store ready", "backend", cfg.StoreBackend)

	// 4. Ledger client with per-call retries
	retryCfg := retry.LoadConfig()
	strategy := retry.NewStrategy(retryCfg)
	slog.Info("Ledger retry policy", "strategy", strategy.Name(), "max_retries", retryCfg.MaxRetries)

	client, err := ledger.NewStellarClient(rpc_backend.ClientConfig{
		Endpoint:          cfg.RPCServerURL,
		BufferSize:        cfg.BufferSize,
		NetworkPassphrase: cfg.NetworkPassphrase,
		Timeout:           cfg.RPCTimeout,
	}, strategy)
	if err != nil {
		log.Fatalf("Failed to create ledger client: %v", err)
	}

	// 5. Indexer
	ix := indexer.New(indexer.Config{
		PollInterval:   cfg.PollInterval,
		PollTimeout:    cfg.PollTimeout,
		BatchSize:      cfg.BatchSize,
		LookbackWindow: cfg.LookbackWindow,
		FetchWorkers:   cfg.FetchWorkers,
	}, client, store, extraction.NewExtractor(cfg.RegistryContractID))

	if err := ix.Start(ctx); err != nil {
		log.Fatalf("Failed to start indexer: %v", err)
	}

	// 6. HTTP ops surface
	server := api.NewServer(cfg.APIPort, store, ix)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	// 7. Wait for a shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Warn("Interrupt received, shutting down...")

	ix.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}

	slog.Info("Indexer stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.SQLStore, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		return storage.NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
}
