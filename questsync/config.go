// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import "time"

// Config holds the engine's tunables. The owning application loads these from
// its own configuration surface and passes them in.
type Config struct {
	Enabled    bool          // master switch; a disabled engine queues changes but never cycles
	Interval   time.Duration // periodic sync interval
	Strategy   Strategy      // default conflict resolution strategy
	BatchSize  int           // push/pull chunk size
	MaxRetries int           // advisory; the push loop retries indefinitely across cycles
	Tables     []string      // fixed list of tables eligible for sync
}

// DefaultConfig returns the standard tracker configuration for the given
// tables.
func DefaultConfig(tables []string) *Config {
	return &Config{
		Enabled:    true,
		Interval:   30 * time.Second,
		Strategy:   StrategyLastWriteWins,
		BatchSize:  50,
		MaxRetries: 3,
		Tables:     tables,
	}
}
