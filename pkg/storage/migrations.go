package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsLogPrefix = "storage:migrations"

// LoadMigrationFiles reads all .sql files from dir, sorted by name, and
// returns their contents.
func LoadMigrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, path, err)
		}
		out = append(out, string(data))
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// RunMigrations applies SQL migration files in order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFiles []string) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", migrationsLogPrefix, len(migrationFiles)))

	for _, sql := range migrationFiles {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s - migration failed: %w", migrationsLogPrefix, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", migrationsLogPrefix))
	return nil
}

// MigrationStatus reports whether migrations have been applied (by
// checking for the records table).
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'records')`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s - failed to check schema: %w", migrationsLogPrefix, err)
	}

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", migrationsLogPrefix, err)
	}

	if exists {
		fmt.Printf("Migration status: applied (schema present, %d migration files in %s)\n", len(files), migrationPath)
	} else {
		fmt.Printf("Migration status: not applied (run 'storaged migrate up'). %d migration files in %s\n", len(files), migrationPath)
	}
	return nil
}

// ClearRecords truncates the records table. Schema is preserved; only
// data is removed.
func ClearRecords(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing records table", migrationsLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE records`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", migrationsLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Records cleared", migrationsLogPrefix))
	return nil
}
