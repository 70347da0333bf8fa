// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// mergeRemote reconciles one pulled remote record with the local store.
//
// A record with no local counterpart is inserted directly. Otherwise the
// version ledger decides: a genuine tie with divergent content goes through
// the resolver, a nonzero comparison lets the newer side win outright.
// Missing local metadata favors the remote side.
func (m *Manager) mergeRemote(ctx context.Context, table string, remote map[string]any) error {
	id, ok := recordID(remote)
	if !ok {
		return fmt.Errorf("remote record in table %s has no usable id", table)
	}
	store, ok := m.registry[table]
	if !ok {
		return fmt.Errorf("table %s is not registered for sync", table)
	}

	now := time.Now().UTC()

	local, err := store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		stamped := remote
		if _, ok := recordTime(remote); !ok {
			stamped = stampRecord(remote, now)
		}
		if err := store.Put(ctx, stamped); err != nil {
			return err
		}
		return m.versions.Save(ctx, NewVersionRecord(id, table, false))
	}
	if err != nil {
		return err
	}

	localMeta, hasMeta, err := m.versions.Load(ctx, table, id)
	if err != nil {
		return err
	}
	remoteMeta := remoteMetaFor(id, table, localMeta, hasMeta, remote)

	if hasMeta && m.resolver.HasConflict(local, remote, localMeta, remoteMeta) {
		return m.resolveConflict(ctx, store, ConflictCase{
			EntityID:   id,
			Table:      table,
			LocalData:  local,
			RemoteData: remote,
			LocalMeta:  localMeta,
			RemoteMeta: remoteMeta,
		}, now)
	}

	cmp := 1 // missing metadata favors remote
	if hasMeta {
		cmp = Compare(localMeta, remoteMeta)
	}
	if cmp == -1 {
		// Local is newer; this cycle discards the remote copy.
		return nil
	}

	stamped := remote
	if _, ok := recordTime(remote); !ok {
		stamped = stampRecord(remote, now)
	}
	if err := store.Put(ctx, stamped); err != nil {
		return err
	}
	if !hasMeta {
		return m.versions.Save(ctx, NewVersionRecord(id, table, false))
	}
	return nil
}

func (m *Manager) resolveConflict(ctx context.Context, store TableStore, c ConflictCase, now time.Time) error {
	res := m.resolver.Resolve(c)

	if !res.Resolved {
		// Manual strategy: the local store stays untouched and the case is
		// parked until ResolveManually is called.
		m.mu.Lock()
		m.manual[c.Table+"/"+c.EntityID] = c
		m.mu.Unlock()
		if err := m.versions.Save(ctx, c.LocalMeta.MarkConflict("", now)); err != nil {
			return err
		}
		m.events.emit(EventConflict, ConflictPayload{
			Table:    c.Table,
			EntityID: c.EntityID,
			Reason:   res.Reason,
		})
		return nil
	}

	if err := store.Put(ctx, stampRecord(res.Data, now)); err != nil {
		return err
	}
	if err := m.versions.Save(ctx, c.LocalMeta.MarkConflict(resolutionKindFor(res), now)); err != nil {
		return err
	}
	m.events.emit(EventConflict, ConflictPayload{
		Table:    c.Table,
		EntityID: c.EntityID,
		Reason:   res.Reason,
	})
	return nil
}

// remoteMetaFor builds the remote side's VersionRecord view from the pulled
// record and the local ledger. Remote rows carry no version counter, so the
// last confirmed remote version stands in for it; a never-synced local record
// compares by timestamps alone.
func remoteMetaFor(id, table string, localMeta VersionRecord, hasMeta bool, remote map[string]any) VersionRecord {
	meta := VersionRecord{
		EntityID:      id,
		Table:         table,
		RemoteVersion: 1,
		Status:        StatusSynced,
	}
	if ts, ok := recordTime(remote); ok {
		meta.LastRemoteChange = ts
	}
	if hasMeta {
		meta.RemoteVersion = localMeta.RemoteVersion
		if meta.RemoteVersion == RemoteVersionUnknown {
			meta.RemoteVersion = localMeta.LocalVersion
		}
	}
	return meta
}

func resolutionKindFor(res Resolution) ResolutionKind {
	switch res.Strategy {
	case StrategyMerge:
		return ResolutionMerged
	case StrategyLocalWins:
		return ResolutionLocalWins
	case StrategyRemoteWins:
		return ResolutionRemoteWins
	default:
		if res.ShouldUpdate {
			return ResolutionRemoteWins
		}
		return ResolutionLocalWins
	}
}
