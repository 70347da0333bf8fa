// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by TableStore.Get when no record has the given id.
var ErrNotFound = errors.New("record not found")

// TableStore is the capability the engine needs from one local table: keyed
// get/put/delete plus a full scan. All operations are individually atomic.
type TableStore interface {
	Get(ctx context.Context, id string) (map[string]any, error)
	Put(ctx context.Context, record map[string]any) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]map[string]any, error)
}

// Registry maps table names to their local accessors. It is populated once at
// startup; the engine iterates it generically instead of indexing the store
// dynamically by name.
type Registry map[string]TableStore

// SQLiteStore keeps one business table as JSON documents in SQLite:
// (id, data, updated_at). The tracker's repositories own the record content;
// the engine only reads and writes whole records.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore creates the backing table if needed.
func NewSQLiteStore(db *sql.DB, table string) (*SQLiteStore, error) {
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %q (
			id         TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT ''
		)`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return &SQLiteStore{db: db, table: table}, nil
}

// NewSQLiteRegistry builds a registry with one SQLiteStore per table.
func NewSQLiteRegistry(db *sql.DB, tables []string) (Registry, error) {
	reg := make(Registry, len(tables))
	for _, table := range tables {
		store, err := NewSQLiteStore(db, table)
		if err != nil {
			return nil, err
		}
		reg[table] = store
	}
	return reg, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM %q WHERE id = ?`, s.table), id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", s.table, id, err)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s/%s: %w", s.table, id, err)
	}
	return record, nil
}

func (s *SQLiteStore) Put(ctx context.Context, record map[string]any) error {
	id, ok := recordID(record)
	if !ok {
		return fmt.Errorf("record for table %s has no usable id", s.table)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", s.table, id, err)
	}
	updatedAt, _ := recordTime(record)
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO %q (id, data, updated_at) VALUES (?, ?, ?)`, s.table),
		id, string(data), formatStoredTime(updatedAt))
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", s.table, id, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, s.table), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", s.table, id, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT data FROM %q`, s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.table, err)
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.table, err)
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s row: %w", s.table, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", s.table, err)
	}
	return records, nil
}

// recordID extracts the entity id from a record payload. JSON decoding leaves
// numbers as float64, so numeric ids are normalized to their string form.
func recordID(record map[string]any) (string, bool) {
	raw, ok := record["id"]
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, v != ""
	case float64:
		return fmt.Sprintf("%.0f", v), true
	case int64:
		return fmt.Sprintf("%d", v), true
	default:
		return "", false
	}
}

// recordTime extracts the record's updated_at timestamp.
func recordTime(record map[string]any) (time.Time, bool) {
	raw, ok := record["updated_at"].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

// stampRecord returns a shallow copy of the record with updated_at set.
func stampRecord(record map[string]any, t time.Time) map[string]any {
	out := make(map[string]any, len(record)+1)
	for k, v := range record {
		out[k] = v
	}
	out["updated_at"] = t.UTC().Format(time.RFC3339Nano)
	return out
}
