// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

// Package questserver is the shared backend the sync engine replicates to:
// per-user record storage in Postgres with filtered reads, upserts, and
// deletes, exposed over an authenticated HTTP API.
package questserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPullLimit bounds a pull page when the client sends no limit.
const DefaultPullLimit = 500

// Config holds the service configuration.
type Config struct {
	Tables       []string // table names allowed in sync operations (required)
	MaxPullLimit int      // hard cap on pull page size (0 = DefaultPullLimit)
}

// Service stores and serves sync records. All access is scoped by the owning
// user; row content is an opaque JSON payload keyed by (user, table, id).
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	cfg    *Config
	tables map[string]bool
}

// NewService creates the service and initializes its schema.
func NewService(ctx context.Context, pool *pgxpool.Pool, cfg *Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil || len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("config.Tables must name at least one table")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPullLimit <= 0 {
		cfg.MaxPullLimit = DefaultPullLimit
	}

	s := &Service{
		pool:   pool,
		logger: logger,
		cfg:    cfg,
		tables: make(map[string]bool, len(cfg.Tables)),
	}
	for _, table := range cfg.Tables {
		s.tables[strings.ToLower(table)] = true
	}

	if err := s.initializeSchema(ctx); err != nil {
		return nil, err
	}
	logger.Debug("sync record schema initialized", "tables", cfg.Tables)
	return s, nil
}

func (s *Service) initializeSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sync_records (
			user_id    TEXT NOT NULL,
			table_name TEXT NOT NULL,
			id         TEXT NOT NULL,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, table_name, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_records_pull
			ON sync_records (user_id, table_name, updated_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// RegisteredTable reports whether the table is allowed in sync operations.
func (s *Service) RegisteredTable(table string) bool {
	return s.tables[strings.ToLower(table)]
}

// MaxPullLimit returns the configured page-size cap.
func (s *Service) MaxPullLimit() int {
	return s.cfg.MaxPullLimit
}

// PullSince returns the user's records in table updated strictly after the
// given time, newest first. A zero time means the full dataset.
func (s *Service) PullSince(ctx context.Context, userID, table string, after time.Time, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > s.cfg.MaxPullLimit {
		limit = s.cfg.MaxPullLimit
	}

	query := `
		SELECT payload FROM sync_records
		WHERE user_id = $1 AND table_name = $2 AND updated_at > $3
		ORDER BY updated_at DESC
		LIMIT $4`
	rows, err := s.pool.Query(ctx, query, userID, strings.ToLower(table), after.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync records: %w", err)
	}
	defer rows.Close()

	records := make([]map[string]any, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		var record map[string]any
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sync record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync records: %w", err)
	}
	return records, nil
}

// Upsert writes the record under (user, table, id), stamping the payload with
// the server-observed update time. The returned time is what clients will see
// as updated_at on subsequent pulls.
func (s *Service) Upsert(ctx context.Context, userID, table, id string, record map[string]any) (time.Time, error) {
	now := time.Now().UTC()

	// The payload is authoritative for record content, but identity and
	// freshness are stamped by the server.
	record["id"] = id
	record["user_id"] = userID
	record["updated_at"] = now.Format(time.RFC3339Nano)

	payload, err := json.Marshal(record)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to marshal sync record: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sync_records (user_id, table_name, id, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, table_name, id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, userID, strings.ToLower(table), id, payload, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to upsert sync record: %w", err)
	}
	return now, nil
}

// Delete removes the user's record. The second return value reports whether a
// row existed; callers treat absence as already-achieved deletion.
func (s *Service) Delete(ctx context.Context, userID, table, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sync_records
		WHERE user_id = $1 AND table_name = $2 AND id = $3
	`, userID, strings.ToLower(table), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete sync record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
