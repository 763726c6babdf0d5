// Package storaged orchestrates the storage service: database pool,
// COMMS subscription, and change event publishing.
package storaged

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/morezero/cluster-gateway/internal/config"
	"github.com/morezero/cluster-gateway/pkg/bus"
	"github.com/morezero/cluster-gateway/pkg/storage"
)

const logPrefix = "storaged:storaged"

// Run starts the storage service, blocks until a shutdown signal, then
// cleans up.
func Run() error {
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevelFromString(cfg.LogLevel),
	})))

	slog.Info(fmt.Sprintf("%s - Starting cluster-storaged %s", logPrefix, storage.ServiceVersion))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Database
	if cfg.EnsureDatabase {
		if err := storage.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("%s - failed to ensure database: %w", logPrefix, err)
		}
	}
	pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		migrationSQL, err := storage.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := storage.RunMigrations(ctx, pool, migrationSQL); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	// Step 2: Connect to the bus
	nc, err := bus.Connect(bus.ConnectConfig{
		URL:           cfg.COMMSURL,
		Name:          cfg.COMMSName,
		ReconnectWait: cfg.COMMSReconnectWait,
		MaxReconnects: cfg.COMMSMaxReconnects,
	})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to bus: %w", logPrefix, err)
	}
	defer nc.Close()
	slog.Info(fmt.Sprintf("%s - Connected to bus at %s", logPrefix, cfg.COMMSURL))

	// Step 3: Answer storage calls
	service := storage.NewService(nc, storage.NewRepository(pool), storage.NewCommsNotifier(nc))
	if err := service.Start(cfg.StorageSubject, cfg.QueueGroup); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Storage service is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	if err := service.Stop(); err != nil {
		slog.Error(fmt.Sprintf("%s - drain subscription: %v", logPrefix, err))
	}
	nc.Drain()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
