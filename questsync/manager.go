// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SyncState is a point-in-time snapshot of the engine.
type SyncState struct {
	DeviceID     string
	UserID       string
	LastFullSync time.Time // cursor: remote data up to this instant has been pulled
	Online       bool
	Syncing      bool
}

// ManualChoice is a human decision for a conflict detected under the manual
// strategy.
type ManualChoice int

const (
	ChooseLocal ManualChoice = iota
	ChooseRemote
)

// Manager orchestrates full sync cycles: drains the change queue to the
// remote store, pulls remote changes since the last cursor, merges each
// incoming record through the version ledger and conflict resolver, and emits
// lifecycle events. One Manager is constructed at the composition root and
// shared by reference.
type Manager struct {
	db       *sql.DB
	remote   RemoteStore
	registry Registry
	queue    *ChangeQueue
	versions *versionStore
	resolver *ConflictResolver
	cfg      *Config
	logger   *slog.Logger
	events   *eventBus
	deviceID string

	mu     sync.Mutex // guards userID, cursor, online, manual
	userID string
	cursor time.Time
	online bool
	manual map[string]ConflictCase // conflicts awaiting a human decision

	syncing  atomic.Bool // reentrancy guard for Sync
	syncReq  chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager wires the engine over a local SQLite database and a remote
// store. Every table in cfg.Tables must have an accessor in the registry.
func NewManager(db *sql.DB, remote RemoteStore, registry Registry, cfg *Config, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if remote == nil {
		return nil, fmt.Errorf("remote store cannot be nil")
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("config.Tables must name at least one table")
	}
	for _, table := range cfg.Tables {
		if _, ok := registry[table]; !ok {
			return nil, fmt.Errorf("table %s has no registered local store", table)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	deviceID, err := EnsureDeviceID(db)
	if err != nil {
		return nil, err
	}
	queue, err := NewChangeQueue(db)
	if err != nil {
		return nil, err
	}
	versions, err := newVersionStore(db)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:       db,
		remote:   remote,
		registry: registry,
		queue:    queue,
		versions: versions,
		resolver: NewConflictResolver(cfg.Strategy),
		cfg:      cfg,
		logger:   logger,
		events:   newEventBus(),
		deviceID: deviceID,
		online:   true,
		manual:   make(map[string]ConflictCase),
		syncReq:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// DeviceID returns this installation's stable identifier.
func (m *Manager) DeviceID() string { return m.deviceID }

// Initialize binds the owning user and performs one immediate full sync.
func (m *Manager) Initialize(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("userID cannot be empty")
	}
	m.mu.Lock()
	m.userID = userID
	m.mu.Unlock()
	m.Sync(ctx)
	return nil
}

// Start runs the periodic sync loop until ctx is cancelled or Stop is called.
// Sync requests queued by RecordChange are drained here too, respecting the
// same reentrancy rule as direct Sync calls.
func (m *Manager) Start(ctx context.Context) {
	if !m.cfg.Enabled {
		m.logger.Info("sync disabled; periodic loop not started")
		return
	}
	go func() {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Sync(ctx)
			case <-m.syncReq:
				m.Sync(ctx)
			}
		}
	}()
}

// Stop prevents future scheduled cycles. A cycle already in flight runs to
// completion.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// SetOnline feeds the network-state signal into the engine. Coming back
// online nudges a sync.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()
	if online && !wasOnline {
		m.requestSync()
	}
}

// Sync runs one full cycle: push, pull, conflict sweep. If a cycle is already
// in flight the call is a no-op returning false; no second run is queued.
// Returns true when the cycle completed without a control-flow failure.
func (m *Manager) Sync(ctx context.Context) bool {
	if !m.syncing.CompareAndSwap(false, true) {
		return false
	}
	m.events.emit(EventSyncStart, nil)
	var err error
	defer func() {
		m.syncing.Store(false)
		m.events.emit(EventSyncEnd, SyncEndPayload{Success: err == nil, Err: err})
	}()

	err = m.runCycle(ctx)
	if err != nil {
		m.logger.Error("sync cycle failed", "error", err)
		return false
	}
	return true
}

// ForceFullSync clears the pull cursor and syncs, pulling the complete remote
// dataset per table.
func (m *Manager) ForceFullSync(ctx context.Context) bool {
	m.mu.Lock()
	m.cursor = time.Time{}
	m.mu.Unlock()
	return m.Sync(ctx)
}

// RecordChange is called by the tracker's repositories after every local
// mutation they want replicated. It appends a queue entry, bumps the version
// ledger, and, when online, requests a sync without blocking the caller.
// Storage errors propagate: they indicate a local persistence problem.
func (m *Manager) RecordChange(ctx context.Context, table string, op Operation, data map[string]any) error {
	id, ok := recordID(data)
	if !ok {
		return fmt.Errorf("change for table %s has no usable id", table)
	}
	if _, ok := m.registry[table]; !ok {
		return fmt.Errorf("table %s is not registered for sync", table)
	}

	if _, err := m.queue.Append(ctx, id, table, op, data, m.deviceID); err != nil {
		return err
	}

	now := time.Now().UTC()
	rec, found, err := m.versions.Load(ctx, table, id)
	if err != nil {
		return err
	}
	if !found {
		rec = NewVersionRecord(id, table, true)
	}
	if err := m.versions.Save(ctx, rec.IncrementLocal(now)); err != nil {
		return err
	}

	if m.isOnline() {
		m.requestSync()
	}
	return nil
}

// State returns a snapshot of the engine.
func (m *Manager) State() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SyncState{
		DeviceID:     m.deviceID,
		UserID:       m.userID,
		LastFullSync: m.cursor,
		Online:       m.online,
		Syncing:      m.syncing.Load(),
	}
}

// RecordSyncStatus returns the version ledger entry for one entity.
func (m *Manager) RecordSyncStatus(ctx context.Context, table, id string) (VersionRecord, bool, error) {
	return m.versions.Load(ctx, table, id)
}

// CleanupSyncedChanges permanently deletes all confirmed queue entries and
// returns the count removed.
func (m *Manager) CleanupSyncedChanges(ctx context.Context) (int64, error) {
	return m.queue.DeleteSynced(ctx)
}

// On subscribes to a lifecycle event. The returned function removes only this
// handler.
func (m *Manager) On(ev Event, fn Handler) func() {
	return m.events.on(ev, fn)
}

// ResolveManually feeds a human decision back into the engine for an entity
// flagged under the manual strategy. ChooseRemote applies the remote payload
// locally and marks the entity synced; ChooseLocal keeps the local record and
// queues it as a fresh update so it pushes on the next cycle.
func (m *Manager) ResolveManually(ctx context.Context, table, id string, choice ManualChoice) error {
	key := table + "/" + id
	m.mu.Lock()
	c, pending := m.manual[key]
	m.mu.Unlock()
	if !pending {
		return fmt.Errorf("no pending manual conflict for %s/%s", table, id)
	}
	store, ok := m.registry[table]
	if !ok {
		return fmt.Errorf("table %s is not registered for sync", table)
	}

	now := time.Now().UTC()
	switch choice {
	case ChooseRemote:
		if err := store.Put(ctx, stampRecord(c.RemoteData, now)); err != nil {
			return err
		}
		rec, found, err := m.versions.Load(ctx, table, id)
		if err != nil {
			return err
		}
		if !found {
			rec = NewVersionRecord(id, table, false)
		}
		if err := m.versions.Save(ctx, rec.MarkSynced(now)); err != nil {
			return err
		}
	case ChooseLocal:
		local, err := store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			local = c.LocalData
		} else if err != nil {
			return err
		}
		if err := m.RecordChange(ctx, table, OpUpdate, local); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown manual choice %d", choice)
	}

	m.mu.Lock()
	delete(m.manual, key)
	m.mu.Unlock()
	return nil
}

// runCycle executes the three phases strictly in order. Per-entry and
// per-table failures are logged at that granularity and do not abort the
// rest of the cycle; only a control-flow failure escapes.
func (m *Manager) runCycle(ctx context.Context) error {
	if m.currentUser() == "" {
		m.logger.Debug("no user bound; skipping sync cycle")
		return nil
	}
	if err := m.push(ctx); err != nil {
		return fmt.Errorf("push phase failed: %w", err)
	}
	if err := m.pull(ctx); err != nil {
		return fmt.Errorf("pull phase failed: %w", err)
	}
	if err := m.sweepConflicts(ctx); err != nil {
		return fmt.Errorf("conflict sweep failed: %w", err)
	}
	return nil
}

// push drains the change queue in fixed-size batches. A failed entry is
// logged and skipped; it stays unsynced and retries next cycle.
func (m *Manager) push(ctx context.Context) error {
	entries, err := m.queue.Pending(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(entries); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(entries) {
			end = len(entries)
		}
		for _, entry := range entries[start:end] {
			if err := m.pushEntry(ctx, entry); err != nil {
				m.logger.Warn("push failed for entry; will retry next cycle",
					"table", entry.Table, "entity", entry.EntityID, "op", entry.Op, "error", err)
			}
		}
	}
	return nil
}

func (m *Manager) pushEntry(ctx context.Context, entry ChangeEntry) error {
	entityID := entry.EntityID
	if entityID == "" {
		if id, ok := recordID(entry.Data); ok {
			entityID = id
		}
	}
	if entityID == "" {
		// Malformed entry: marking it synced drops it instead of retrying
		// garbage indefinitely.
		m.logger.Warn("dropping queued change without usable id", "table", entry.Table, "id", entry.ID)
		return m.queue.MarkSynced(ctx, entry.ID)
	}

	now := time.Now().UTC()
	if entry.Op == OpDelete {
		if err := m.remote.Delete(ctx, entry.Table, entityID, m.currentUser()); err != nil {
			m.markPushFailed(ctx, entry.Table, entityID, now)
			return err
		}
		if err := m.versions.Delete(ctx, entry.Table, entityID); err != nil {
			return err
		}
		return m.queue.MarkSynced(ctx, entry.ID)
	}

	payload := stampRecord(entry.Data, now)
	payload["user_id"] = m.currentUser()
	if err := m.remote.Upsert(ctx, entry.Table, payload); err != nil {
		m.markPushFailed(ctx, entry.Table, entityID, now)
		return err
	}

	rec, found, err := m.versions.Load(ctx, entry.Table, entityID)
	if err != nil {
		return err
	}
	if !found {
		rec = NewVersionRecord(entityID, entry.Table, true).IncrementLocal(entry.Timestamp)
	}
	if err := m.versions.Save(ctx, rec.MarkSynced(now)); err != nil {
		return err
	}
	return m.queue.MarkSynced(ctx, entry.ID)
}

func (m *Manager) markPushFailed(ctx context.Context, table, entityID string, now time.Time) {
	rec, found, err := m.versions.Load(ctx, table, entityID)
	if err != nil {
		m.logger.Warn("failed to load ledger entry for push failure", "table", table, "entity", entityID, "error", err)
		return
	}
	if !found {
		return
	}
	if err := m.versions.Save(ctx, rec.MarkFailed(now)); err != nil {
		m.logger.Warn("failed to record push failure", "table", table, "entity", entityID, "error", err)
	}
}

// pull fetches remote changes per eligible table since the cursor and merges
// every returned record. The cursor advances to the cycle's start time after
// all tables were attempted.
func (m *Manager) pull(ctx context.Context) error {
	m.mu.Lock()
	cursor := m.cursor
	m.mu.Unlock()
	started := time.Now().UTC()

	for _, table := range m.cfg.Tables {
		if err := m.pullTable(ctx, table, cursor); err != nil {
			m.logger.Warn("pull failed for table; cursor still advances, missed window needs a full sync",
				"table", table, "error", err)
		}
	}

	m.mu.Lock()
	m.cursor = started
	m.mu.Unlock()
	return nil
}

func (m *Manager) pullTable(ctx context.Context, table string, since time.Time) error {
	records, err := m.remote.PullSince(ctx, table, m.currentUser(), since, m.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := m.mergeRemote(ctx, table, record); err != nil {
			m.logger.Warn("failed to merge remote record",
				"table", table, "error", err)
		}
	}
	return nil
}

// sweepConflicts re-affirms entities whose conflict was already decided by an
// earlier resolve call: the current local record is re-stamped and persisted
// unchanged in content, and the marker flips to synced. Conflicts still
// awaiting a manual decision are left alone.
func (m *Manager) sweepConflicts(ctx context.Context) error {
	recs, err := m.versions.ListByStatus(ctx, StatusConflict)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, rec := range recs {
		if rec.Resolution == "" {
			continue
		}
		store, ok := m.registry[rec.Table]
		if !ok {
			continue
		}
		local, err := store.Get(ctx, rec.EntityID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.Warn("conflict sweep failed to load record",
				"table", rec.Table, "entity", rec.EntityID, "error", err)
			continue
		}
		if err == nil {
			if err := store.Put(ctx, stampRecord(local, now)); err != nil {
				m.logger.Warn("conflict sweep failed to re-stamp record",
					"table", rec.Table, "entity", rec.EntityID, "error", err)
				continue
			}
		}
		if err := m.versions.Save(ctx, rec.MarkSynced(now)); err != nil {
			m.logger.Warn("conflict sweep failed to update ledger",
				"table", rec.Table, "entity", rec.EntityID, "error", err)
		}
	}
	return nil
}

func (m *Manager) currentUser() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

func (m *Manager) isOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// requestSync queues a sync request without blocking. The single-slot channel
// coalesces bursts of local mutations into one cycle.
func (m *Manager) requestSync() {
	select {
	case m.syncReq <- struct{}{}:
	default:
	}
}
