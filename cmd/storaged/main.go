// Package main is the entrypoint for cluster-storaged, the bus-backed
// storage service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/morezero/cluster-gateway/internal/config"
	"github.com/morezero/cluster-gateway/internal/storaged"
	"github.com/morezero/cluster-gateway/pkg/storage"
)

const usage = `Usage: storaged [command]
       storaged serve              Start the storage service (COMMS, Postgres).
       storaged migrate up         Run database migrations.
       storaged migrate status     Show migration status.
       storaged ensure-db [name]   Create database if missing. Uses DATABASE_URL host/user.
       storaged clear              Truncate stored records; schema is preserved.

Commands:
  serve           (default) Start the storage service.
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  ensure-db [name] Create database (e.g. commissaire_test) on same host as DATABASE_URL.
  clear           Truncate record data; schema preserved.

Environment: DATABASE_URL (required), MIGRATION_PATH, COMMS_URL,
STORAGE_SUBJECT, STORAGE_QUEUE, LOG_LEVEL. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("storaged migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("storaged migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("storaged migrate status: %v", err)
			}
		default:
			log.Fatalf("storaged migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("storaged clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "commissaire_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("storaged ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := storaged.Run(); err != nil {
		log.Fatalf("storaged: %v", err)
	}
}

func runMigrateUp() error {
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrationSQL, err := storage.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := storage.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return storage.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runClear() error {
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := storage.ClearRecords(ctx, pool); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Replace path with target database name; query (e.g. sslmode) is kept.
	u.Path = "/" + dbName
	if err := storage.EnsureDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}
