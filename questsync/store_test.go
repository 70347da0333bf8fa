// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(openTestDB(t), "quests")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := store.Get(ctx, "q1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing = %v, want ErrNotFound", err)
	}

	record := map[string]any{
		"id":         "q1",
		"title":      "ship the tracker",
		"xp":         float64(50),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "q1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["title"] != "ship the tracker" || got["xp"] != float64(50) {
		t.Fatalf("round trip = %v", got)
	}

	// Put is an upsert.
	record["title"] = "ship it already"
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("put update: %v", err)
	}
	got, err = store.Get(ctx, "q1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got["title"] != "ship it already" {
		t.Fatalf("update lost: %v", got)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("list = %d records, want 1", len(all))
	}

	if err := store.Delete(ctx, "q1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "q1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreRejectsRecordWithoutID(t *testing.T) {
	store, err := NewSQLiteStore(openTestDB(t), "quests")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Put(context.Background(), map[string]any{"title": "no id"}); err == nil {
		t.Fatalf("expected error for record without id")
	}
}

func TestNewSQLiteRegistry(t *testing.T) {
	tables := []string{"quests", "activities", "xp_ledger"}
	reg, err := NewSQLiteRegistry(openTestDB(t), tables)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for _, table := range tables {
		if _, ok := reg[table]; !ok {
			t.Fatalf("registry missing table %s", table)
		}
	}
}

func TestRecordIDNormalizesNumbers(t *testing.T) {
	if id, ok := recordID(map[string]any{"id": "q1"}); !ok || id != "q1" {
		t.Fatalf("string id = %q/%v", id, ok)
	}
	if id, ok := recordID(map[string]any{"id": float64(42)}); !ok || id != "42" {
		t.Fatalf("numeric id = %q/%v", id, ok)
	}
	if _, ok := recordID(map[string]any{"id": ""}); ok {
		t.Fatalf("empty id accepted")
	}
	if _, ok := recordID(map[string]any{}); ok {
		t.Fatalf("missing id accepted")
	}
}
