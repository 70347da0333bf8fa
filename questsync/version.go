// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

// Package questsync implements the offline-first multi-device synchronization
// engine for the grindset tracker: per-entity version bookkeeping, a queue of
// local mutations awaiting upload, conflict detection/resolution, and the
// orchestration of full sync cycles against a remote store.
package questsync

import "time"

// SyncStatus tracks where an entity stands in the sync state machine.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSynced   SyncStatus = "synced"
	StatusFailed   SyncStatus = "failed"
	StatusConflict SyncStatus = "conflict"
)

// ResolutionKind records how a conflict was decided.
type ResolutionKind string

const (
	ResolutionLocalWins  ResolutionKind = "local-wins"
	ResolutionRemoteWins ResolutionKind = "remote-wins"
	ResolutionMerged     ResolutionKind = "merged"
)

// RemoteVersionUnknown marks a record that was created locally and has never
// been confirmed by the remote store.
const RemoteVersionUnknown int64 = -1

// VersionRecord is the per-(entity, table) sync bookkeeping. Values are plain
// data; the transition methods below are side-effect free and the caller is
// responsible for persisting the result.
type VersionRecord struct {
	EntityID         string
	Table            string
	LocalVersion     int64
	RemoteVersion    int64
	LastLocalChange  time.Time
	LastRemoteChange time.Time
	LastSyncAttempt  time.Time
	Status           SyncStatus
	Resolution       ResolutionKind
}

// NewVersionRecord creates the initial bookkeeping for an entity. A brand-new
// local entity starts at localVersion 0 (the first IncrementLocal brings it to
// 1) with an unknown remote version. A freshly observed remote entity is
// already considered synced from this side.
func NewVersionRecord(entityID, table string, isNew bool) VersionRecord {
	rec := VersionRecord{
		EntityID:      entityID,
		Table:         table,
		LocalVersion:  0,
		RemoteVersion: RemoteVersionUnknown,
		Status:        StatusPending,
	}
	if !isNew {
		rec.RemoteVersion = 1
		rec.Status = StatusSynced
	}
	return rec
}

// Compare decides which side of an entity is authoritative.
// Returns -1 when local wins, 1 when remote wins, 0 when the two are
// indistinguishable. Version numbers are compared first, change timestamps
// break ties; record content never participates.
func Compare(local, remote VersionRecord) int {
	switch {
	case local.LocalVersion > remote.RemoteVersion:
		return -1
	case local.LocalVersion < remote.RemoteVersion:
		return 1
	}
	switch {
	case local.LastLocalChange.After(remote.LastRemoteChange):
		return -1
	case remote.LastRemoteChange.After(local.LastLocalChange):
		return 1
	}
	return 0
}

// IncrementLocal registers one local mutation: bumps the local version and
// flips the record back to pending.
func (r VersionRecord) IncrementLocal(now time.Time) VersionRecord {
	r.LocalVersion++
	r.LastLocalChange = now
	r.Status = StatusPending
	return r
}

// MarkSynced records a confirmed push: the remote store now holds exactly what
// this device holds.
func (r VersionRecord) MarkSynced(now time.Time) VersionRecord {
	r.RemoteVersion = r.LocalVersion
	r.LastRemoteChange = r.LastLocalChange
	r.LastSyncAttempt = now
	r.Status = StatusSynced
	r.Resolution = ""
	return r
}

// MarkFailed records an unsuccessful push attempt. Failed records are retried
// on the next cycle; there is no terminal failure state.
func (r VersionRecord) MarkFailed(now time.Time) VersionRecord {
	r.LastSyncAttempt = now
	r.Status = StatusFailed
	return r
}

// MarkConflict flags the record as conflicted with the given resolution
// outcome. Version and timestamp fields are carried from the local side
// unchanged. An empty resolution means the conflict still awaits a manual
// decision.
func (r VersionRecord) MarkConflict(res ResolutionKind, now time.Time) VersionRecord {
	r.Status = StatusConflict
	r.Resolution = res
	r.LastSyncAttempt = now
	return r
}
