// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import "sync"

// Event names a sync lifecycle notification.
type Event string

const (
	EventSyncStart Event = "syncStart"
	EventSyncEnd   Event = "syncEnd"
	EventConflict  Event = "conflict"
	// EventError is part of the subscription surface but not emitted by the
	// current flows; per-entry failures are logged and retried instead.
	EventError Event = "error"
)

// SyncEndPayload accompanies EventSyncEnd.
type SyncEndPayload struct {
	Success bool
	Err     error
}

// ConflictPayload accompanies EventConflict.
type ConflictPayload struct {
	Table    string
	EntityID string
	Reason   string
}

// Handler receives event payloads. Handlers run synchronously on the syncing
// goroutine and should return quickly.
type Handler func(payload any)

type eventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Event]map[int]Handler
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[Event]map[int]Handler)}
}

// on registers a handler and returns a function that removes only that
// handler.
func (b *eventBus) on(ev Event, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[ev] == nil {
		b.subs[ev] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[ev][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[ev], id)
	}
}

func (b *eventBus) emit(ev Event, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[ev]))
	for _, fn := range b.subs[ev] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()
	for _, fn := range handlers {
		fn(payload)
	}
}
