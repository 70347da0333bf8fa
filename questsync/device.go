// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EnsureDeviceID returns this installation's stable device identifier,
// generating and persisting a random one on first use. The identifier tags
// every queued change so other devices can tell foreign writes from echoes of
// their own.
func EnsureDeviceID(db *sql.DB) (string, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _sync_device (
			k         INTEGER PRIMARY KEY CHECK (k = 1),
			device_id TEXT NOT NULL
		)`)
	if err != nil {
		return "", fmt.Errorf("failed to create device table: %w", err)
	}

	var deviceID string
	err = db.QueryRow(`SELECT device_id FROM _sync_device WHERE k = 1`).Scan(&deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		deviceID = uuid.New().String()
		if _, err := db.Exec(`INSERT INTO _sync_device (k, device_id) VALUES (1, ?)`, deviceID); err != nil {
			return "", fmt.Errorf("failed to persist device id: %w", err)
		}
		return deviceID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query device id: %w", err)
	}
	return deviceID, nil
}
