// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the kind of local mutation queued for upload.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeEntry is one queued local mutation. Data holds the full record
// snapshot taken at enqueue time.
type ChangeEntry struct {
	ID        string
	EntityID  string
	Table     string
	Op        Operation
	Data      map[string]any
	Timestamp time.Time
	DeviceID  string
	Synced    bool
}

// ChangeQueue is the append-only log of local mutations not yet confirmed by
// the remote store, backed by the _sync_queue table.
type ChangeQueue struct {
	db *sql.DB
}

// NewChangeQueue creates the queue table if needed.
func NewChangeQueue(db *sql.DB) (*ChangeQueue, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _sync_queue (
			id         TEXT PRIMARY KEY,
			entity_id  TEXT NOT NULL,
			table_name TEXT NOT NULL,
			op         TEXT NOT NULL CHECK (op IN ('create','update','delete')),
			data       TEXT NOT NULL,
			queued_at  TEXT NOT NULL,
			device_id  TEXT NOT NULL,
			synced     INTEGER NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue table: %w", err)
	}
	return &ChangeQueue{db: db}, nil
}

// Append constructs and persists a new entry. Storage errors propagate to the
// caller; they indicate a local persistence problem the app should surface.
func (q *ChangeQueue) Append(ctx context.Context, entityID, table string, op Operation, data map[string]any, deviceID string) (ChangeEntry, error) {
	now := time.Now().UTC()
	entry := ChangeEntry{
		ID:        fmt.Sprintf("%s-%d", entityID, now.UnixNano()),
		EntityID:  entityID,
		Table:     table,
		Op:        op,
		Data:      data,
		Timestamp: now,
		DeviceID:  deviceID,
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return ChangeEntry{}, fmt.Errorf("failed to marshal change snapshot: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO _sync_queue (id, entity_id, table_name, op, data, queued_at, device_id, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, entry.ID, entry.EntityID, entry.Table, string(entry.Op), string(payload),
		now.Format(time.RFC3339Nano), entry.DeviceID)
	if err != nil {
		return ChangeEntry{}, fmt.Errorf("failed to append change entry: %w", err)
	}
	return entry, nil
}

// Pending returns all entries not yet confirmed synced, oldest first.
func (q *ChangeQueue) Pending(ctx context.Context) ([]ChangeEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, entity_id, table_name, op, data, queued_at, device_id, synced
		FROM _sync_queue WHERE synced = 0 ORDER BY queued_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending changes: %w", err)
	}
	defer rows.Close()

	var entries []ChangeEntry
	for rows.Next() {
		entry, err := scanChangeEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending changes: %w", err)
	}
	return entries, nil
}

// MarkSynced flips one entry to synced after a confirmed push.
func (q *ChangeQueue) MarkSynced(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE _sync_queue SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark change synced: %w", err)
	}
	return nil
}

// DeleteSynced permanently removes all confirmed entries and returns the
// count. Garbage collection is explicit and never runs mid-push, so entries
// whose confirmation is still in flight cannot be lost.
func (q *ChangeQueue) DeleteSynced(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM _sync_queue WHERE synced = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete synced changes: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted changes: %w", err)
	}
	return count, nil
}

// CountPending returns the number of entries awaiting upload.
func (q *ChangeQueue) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _sync_queue WHERE synced = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return count, nil
}

func scanChangeEntry(rows *sql.Rows) (ChangeEntry, error) {
	var entry ChangeEntry
	var op, payload, queuedAt string
	var synced int
	if err := rows.Scan(&entry.ID, &entry.EntityID, &entry.Table, &op, &payload,
		&queuedAt, &entry.DeviceID, &synced); err != nil {
		return ChangeEntry{}, fmt.Errorf("failed to scan change entry: %w", err)
	}
	entry.Op = Operation(op)
	entry.Synced = synced != 0
	entry.Timestamp = parseStoredTime(queuedAt)
	if payload != "" && payload != "null" {
		if err := json.Unmarshal([]byte(payload), &entry.Data); err != nil {
			return ChangeEntry{}, fmt.Errorf("failed to unmarshal change snapshot: %w", err)
		}
	}
	return entry, nil
}
