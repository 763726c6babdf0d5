package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "storage:repository"

// Repository is the Postgres-backed Store. Records live in a single
// records table keyed by (kind, key) with the document in a jsonb column.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository over the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the record for kind and key, or ErrNotFound.
func (r *Repository) Get(ctx context.Context, kind, key string) (json.RawMessage, error) {
	slog.Debug(fmt.Sprintf("%s - Get kind=%s key=%s", repoLogPrefix, kind, key))

	var record json.RawMessage
	err := r.pool.QueryRow(ctx,
		`SELECT record FROM records WHERE kind = $1 AND key = $2 LIMIT 1`,
		kind, key).Scan(&record)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s - Get %s/%s failed: %w", repoLogPrefix, kind, key, err)
	}
	return record, nil
}

// List returns all records of a kind in key order.
func (r *Repository) List(ctx context.Context, kind string) ([]json.RawMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT record FROM records WHERE kind = $1 ORDER BY key`, kind)
	if err != nil {
		return nil, fmt.Errorf("%s - List %s failed: %w", repoLogPrefix, kind, err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var record json.RawMessage
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("%s - List %s scan failed: %w", repoLogPrefix, kind, err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - List %s rows failed: %w", repoLogPrefix, kind, err)
	}
	return out, nil
}

// Save creates or replaces the record for kind and key.
func (r *Repository) Save(ctx context.Context, kind, key string, record json.RawMessage) error {
	slog.Debug(fmt.Sprintf("%s - Save kind=%s key=%s", repoLogPrefix, kind, key))

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO records (kind, key, record, created, modified)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (kind, key) DO UPDATE SET
		   record = $3,
		   modified = $4`,
		kind, key, record, now)
	if err != nil {
		return fmt.Errorf("%s - Save %s/%s failed: %w", repoLogPrefix, kind, key, err)
	}
	return nil
}

// Delete removes the record for kind and key, or returns ErrNotFound.
func (r *Repository) Delete(ctx context.Context, kind, key string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM records WHERE kind = $1 AND key = $2`, kind, key)
	if err != nil {
		return fmt.Errorf("%s - Delete %s/%s failed: %w", repoLogPrefix, kind, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
