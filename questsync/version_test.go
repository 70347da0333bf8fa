// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"testing"
	"time"
)

func TestCompareVersionFirstTimestampSecond(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		local  VersionRecord
		remote VersionRecord
		want   int
	}{
		{
			name:   "local version higher",
			local:  VersionRecord{LocalVersion: 3, LastLocalChange: base},
			remote: VersionRecord{RemoteVersion: 2, LastRemoteChange: base.Add(time.Hour)},
			want:   -1,
		},
		{
			name:   "remote version higher",
			local:  VersionRecord{LocalVersion: 1, LastLocalChange: base.Add(time.Hour)},
			remote: VersionRecord{RemoteVersion: 2, LastRemoteChange: base},
			want:   1,
		},
		{
			name:   "equal versions local timestamp newer",
			local:  VersionRecord{LocalVersion: 2, LastLocalChange: base.Add(time.Second)},
			remote: VersionRecord{RemoteVersion: 2, LastRemoteChange: base},
			want:   -1,
		},
		{
			name:   "equal versions remote timestamp newer",
			local:  VersionRecord{LocalVersion: 2, LastLocalChange: base},
			remote: VersionRecord{RemoteVersion: 2, LastRemoteChange: base.Add(time.Second)},
			want:   1,
		},
		{
			name:   "indistinguishable",
			local:  VersionRecord{LocalVersion: 2, LastLocalChange: base},
			remote: VersionRecord{RemoteVersion: 2, LastRemoteChange: base},
			want:   0,
		},
	}

	for _, tc := range cases {
		if got := Compare(tc.local, tc.remote); got != tc.want {
			t.Errorf("%s: Compare = %d, want %d", tc.name, got, tc.want)
		}
	}
}

// With equal version numbers, Compare is antisymmetric on timestamps unless
// the timestamps are exactly equal.
func TestCompareAntisymmetricOnTimestamps(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	offsets := []time.Duration{0, time.Millisecond, time.Second, time.Hour}

	for _, da := range offsets {
		for _, db := range offsets {
			a := VersionRecord{LocalVersion: 1, RemoteVersion: 1, LastLocalChange: base.Add(da), LastRemoteChange: base.Add(da)}
			b := VersionRecord{LocalVersion: 1, RemoteVersion: 1, LastLocalChange: base.Add(db), LastRemoteChange: base.Add(db)}

			ab := Compare(a, b)
			ba := Compare(b, a)
			if da == db {
				if ab != 0 || ba != 0 {
					t.Fatalf("equal timestamps: Compare = %d/%d, want 0/0", ab, ba)
				}
				continue
			}
			if ab != -ba {
				t.Fatalf("offsets %v/%v: Compare(a,b)=%d, Compare(b,a)=%d, want negation", da, db, ab, ba)
			}
		}
	}
}

func TestIncrementLocalAlwaysIncreases(t *testing.T) {
	rec := NewVersionRecord("q1", "quests", true)
	now := time.Now().UTC()

	first := rec.IncrementLocal(now)
	if first.LocalVersion != 1 {
		t.Fatalf("LocalVersion = %d, want 1", first.LocalVersion)
	}
	if first.Status != StatusPending {
		t.Fatalf("Status = %s, want pending", first.Status)
	}

	second := first.IncrementLocal(now.Add(time.Second))
	if second.LocalVersion != 2 {
		t.Fatalf("LocalVersion = %d, want 2", second.LocalVersion)
	}
	if second.Status != StatusPending {
		t.Fatalf("Status = %s, want pending", second.Status)
	}
	if !second.LastLocalChange.After(first.LastLocalChange) {
		t.Fatalf("LastLocalChange did not advance")
	}
}

func TestNewVersionRecord(t *testing.T) {
	local := NewVersionRecord("q1", "quests", true)
	if local.LocalVersion != 0 || local.RemoteVersion != RemoteVersionUnknown {
		t.Fatalf("new local record = %+v", local)
	}
	if local.Status != StatusPending {
		t.Fatalf("new local record status = %s, want pending", local.Status)
	}

	observed := NewVersionRecord("q2", "quests", false)
	if observed.LocalVersion != 0 || observed.RemoteVersion != 1 {
		t.Fatalf("observed remote record = %+v", observed)
	}
	if observed.Status != StatusSynced {
		t.Fatalf("observed remote record status = %s, want synced", observed.Status)
	}
}

func TestMarkSynced(t *testing.T) {
	now := time.Now().UTC()
	rec := NewVersionRecord("q1", "quests", true).IncrementLocal(now)

	synced := rec.MarkSynced(now.Add(time.Second))
	if synced.RemoteVersion != synced.LocalVersion {
		t.Fatalf("RemoteVersion = %d, want %d", synced.RemoteVersion, synced.LocalVersion)
	}
	if !synced.LastRemoteChange.Equal(synced.LastLocalChange) {
		t.Fatalf("LastRemoteChange not carried from LastLocalChange")
	}
	if synced.Status != StatusSynced {
		t.Fatalf("Status = %s, want synced", synced.Status)
	}
	if synced.Resolution != "" {
		t.Fatalf("Resolution = %q, want empty after sync", synced.Resolution)
	}
}

func TestMarkConflictCarriesVersions(t *testing.T) {
	now := time.Now().UTC()
	rec := NewVersionRecord("q1", "quests", true).IncrementLocal(now)

	conflicted := rec.MarkConflict(ResolutionRemoteWins, now.Add(time.Second))
	if conflicted.Status != StatusConflict {
		t.Fatalf("Status = %s, want conflict", conflicted.Status)
	}
	if conflicted.Resolution != ResolutionRemoteWins {
		t.Fatalf("Resolution = %s, want remote-wins", conflicted.Resolution)
	}
	if conflicted.LocalVersion != rec.LocalVersion || !conflicted.LastLocalChange.Equal(rec.LastLocalChange) {
		t.Fatalf("version fields not carried from local record")
	}
}

func TestMarkFailedRetainsVersion(t *testing.T) {
	now := time.Now().UTC()
	rec := NewVersionRecord("q1", "quests", true).IncrementLocal(now)

	failed := rec.MarkFailed(now.Add(time.Second))
	if failed.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", failed.Status)
	}
	if failed.LocalVersion != rec.LocalVersion {
		t.Fatalf("LocalVersion changed on failure")
	}
}
