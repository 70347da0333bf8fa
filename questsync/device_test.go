// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import "testing"

func TestEnsureDeviceIDStableAcrossCalls(t *testing.T) {
	db := openTestDB(t)

	first, err := EnsureDeviceID(db)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first == "" {
		t.Fatalf("empty device id")
	}

	second, err := EnsureDeviceID(db)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if second != first {
		t.Fatalf("device id changed between calls: %s vs %s", first, second)
	}
}
