// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// versionStore persists VersionRecords in the local SQLite database. The pure
// transition functions live in version.go; this type only does I/O.
type versionStore struct {
	db *sql.DB
}

func newVersionStore(db *sql.DB) (*versionStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _sync_versions (
			table_name         TEXT NOT NULL,
			entity_id          TEXT NOT NULL,
			local_version      INTEGER NOT NULL DEFAULT 0,
			remote_version     INTEGER NOT NULL DEFAULT -1,
			last_local_change  TEXT NOT NULL DEFAULT '',
			last_remote_change TEXT NOT NULL DEFAULT '',
			last_sync_attempt  TEXT NOT NULL DEFAULT '',
			sync_status        TEXT NOT NULL DEFAULT 'pending',
			resolution         TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (table_name, entity_id)
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create version table: %w", err)
	}
	return &versionStore{db: db}, nil
}

// Load returns the VersionRecord for (table, entityID). The second return
// value reports whether the record exists.
func (s *versionStore) Load(ctx context.Context, table, entityID string) (VersionRecord, bool, error) {
	var rec VersionRecord
	var localChange, remoteChange, syncAttempt string
	err := s.db.QueryRowContext(ctx, `
		SELECT table_name, entity_id, local_version, remote_version,
		       last_local_change, last_remote_change, last_sync_attempt,
		       sync_status, resolution
		FROM _sync_versions WHERE table_name = ? AND entity_id = ?
	`, table, entityID).Scan(
		&rec.Table, &rec.EntityID, &rec.LocalVersion, &rec.RemoteVersion,
		&localChange, &remoteChange, &syncAttempt, &rec.Status, &rec.Resolution,
	)
	if err == sql.ErrNoRows {
		return VersionRecord{}, false, nil
	}
	if err != nil {
		return VersionRecord{}, false, fmt.Errorf("failed to load version record: %w", err)
	}
	rec.LastLocalChange = parseStoredTime(localChange)
	rec.LastRemoteChange = parseStoredTime(remoteChange)
	rec.LastSyncAttempt = parseStoredTime(syncAttempt)
	return rec, true, nil
}

// Save upserts the record.
func (s *versionStore) Save(ctx context.Context, rec VersionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO _sync_versions
			(table_name, entity_id, local_version, remote_version,
			 last_local_change, last_remote_change, last_sync_attempt,
			 sync_status, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Table, rec.EntityID, rec.LocalVersion, rec.RemoteVersion,
		formatStoredTime(rec.LastLocalChange), formatStoredTime(rec.LastRemoteChange),
		formatStoredTime(rec.LastSyncAttempt), string(rec.Status), string(rec.Resolution))
	if err != nil {
		return fmt.Errorf("failed to save version record: %w", err)
	}
	return nil
}

// Delete removes the record, typically after a confirmed remote delete.
func (s *versionStore) Delete(ctx context.Context, table, entityID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM _sync_versions WHERE table_name = ? AND entity_id = ?
	`, table, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete version record: %w", err)
	}
	return nil
}

// ListByStatus returns all records currently in the given status.
func (s *versionStore) ListByStatus(ctx context.Context, status SyncStatus) ([]VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, entity_id, local_version, remote_version,
		       last_local_change, last_remote_change, last_sync_attempt,
		       sync_status, resolution
		FROM _sync_versions WHERE sync_status = ?
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list version records: %w", err)
	}
	defer rows.Close()

	var recs []VersionRecord
	for rows.Next() {
		var rec VersionRecord
		var localChange, remoteChange, syncAttempt string
		if err := rows.Scan(&rec.Table, &rec.EntityID, &rec.LocalVersion, &rec.RemoteVersion,
			&localChange, &remoteChange, &syncAttempt, &rec.Status, &rec.Resolution); err != nil {
			return nil, fmt.Errorf("failed to scan version record: %w", err)
		}
		rec.LastLocalChange = parseStoredTime(localChange)
		rec.LastRemoteChange = parseStoredTime(remoteChange)
		rec.LastSyncAttempt = parseStoredTime(syncAttempt)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating version records: %w", err)
	}
	return recs, nil
}

func formatStoredTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStoredTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
