// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questsync

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
)

// Strategy names a conflict resolution policy.
type Strategy string

const (
	StrategyLastWriteWins Strategy = "last-write-wins"
	StrategyLocalWins     Strategy = "local-wins"
	StrategyRemoteWins    Strategy = "remote-wins"
	StrategyMerge         Strategy = "merge"
	StrategyManual        Strategy = "manual"
)

// internalFieldPrefix marks payload fields owned by the sync engine itself;
// they never participate in field-level merging.
const internalFieldPrefix = "_"

// ConflictCase carries both sides of a detected conflict. It is constructed
// during a merge step and discarded after resolution, never persisted.
type ConflictCase struct {
	EntityID   string
	Table      string
	LocalData  map[string]any
	RemoteData map[string]any
	LocalMeta  VersionRecord
	RemoteMeta VersionRecord
}

// Resolution is the outcome of resolving a ConflictCase. ShouldUpdate is true
// when the caller must persist Data into the local store (the remote side, or
// a merge differing from it, won).
type Resolution struct {
	Resolved     bool
	Strategy     Strategy
	Data         map[string]any
	ShouldUpdate bool
	Reason       string
}

// ConflictResolver applies a configured strategy to conflicting versions of an
// entity. All decisions are pure functions of the inputs.
type ConflictResolver struct {
	strategy Strategy
}

// NewConflictResolver returns a resolver for the named strategy. Unknown
// names fall back to last-write-wins at resolve time.
func NewConflictResolver(strategy Strategy) *ConflictResolver {
	return &ConflictResolver{strategy: strategy}
}

// Strategy returns the configured strategy name.
func (r *ConflictResolver) Strategy() Strategy {
	return r.strategy
}

// HasConflict reports whether the two sides are a genuine simultaneous,
// divergent edit: version/timestamp comparison must be a dead tie AND the
// payloads must actually differ. When Compare is nonzero the newer side wins
// outright and no conflict exists, regardless of content.
func (r *ConflictResolver) HasConflict(localData, remoteData map[string]any, localMeta, remoteMeta VersionRecord) bool {
	if Compare(localMeta, remoteMeta) != 0 {
		return false
	}
	return !payloadEqual(localData, remoteData)
}

// Resolve picks a winning payload for the conflict. It never fails; an
// unsupported strategy degrades to last-write-wins.
func (r *ConflictResolver) Resolve(c ConflictCase) Resolution {
	switch r.strategy {
	case StrategyLocalWins:
		return Resolution{
			Resolved: true,
			Strategy: StrategyLocalWins,
			Data:     c.LocalData,
			Reason:   "configured to keep local data",
		}
	case StrategyRemoteWins:
		return Resolution{
			Resolved:     true,
			Strategy:     StrategyRemoteWins,
			Data:         c.RemoteData,
			ShouldUpdate: true,
			Reason:       "configured to keep remote data",
		}
	case StrategyMerge:
		return resolveMerge(c)
	case StrategyManual:
		return Resolution{
			Resolved: false,
			Strategy: StrategyManual,
			Data:     c.LocalData,
			Reason:   "manual resolution required",
		}
	default:
		return resolveLastWriteWins(c)
	}
}

// resolveLastWriteWins compares raw change timestamps directly. This path is
// only reached when the version comparison was a tie, so the timestamps alone
// decide; an exact tie goes to the remote side, matching the rule that the
// record processed last wins.
func resolveLastWriteWins(c ConflictCase) Resolution {
	if c.LocalMeta.LastLocalChange.After(c.RemoteMeta.LastRemoteChange) {
		return Resolution{
			Resolved: true,
			Strategy: StrategyLastWriteWins,
			Data:     c.LocalData,
			Reason:   "local change is newer",
		}
	}
	return Resolution{
		Resolved:     true,
		Strategy:     StrategyLastWriteWins,
		Data:         c.RemoteData,
		ShouldUpdate: true,
		Reason:       "remote change is newer",
	}
}

// resolveMerge performs a field-level merge of object-shaped payloads. Local
// values take precedence; arrays are union-merged by element id; nested
// objects are merged one level deep. Non-object payloads fall back to
// last-write-wins.
func resolveMerge(c ConflictCase) Resolution {
	if c.LocalData == nil || c.RemoteData == nil {
		return resolveLastWriteWins(c)
	}

	merged := make(map[string]any, len(c.RemoteData)+len(c.LocalData))
	for k, v := range c.RemoteData {
		merged[k] = v
	}

	for key, localVal := range c.LocalData {
		if strings.HasPrefix(key, internalFieldPrefix) {
			continue
		}
		remoteVal, exists := merged[key]
		if !exists {
			merged[key] = localVal
			continue
		}
		localArr, localIsArr := localVal.([]any)
		remoteArr, remoteIsArr := remoteVal.([]any)
		if localIsArr && remoteIsArr {
			merged[key] = mergeArrays(localArr, remoteArr)
			continue
		}
		localObj, localIsObj := localVal.(map[string]any)
		remoteObj, remoteIsObj := remoteVal.(map[string]any)
		if localIsObj && remoteIsObj {
			merged[key] = mergeObjects(localObj, remoteObj)
			continue
		}
		if !valueEqual(localVal, remoteVal) {
			merged[key] = localVal
		}
	}

	return Resolution{
		Resolved:     true,
		Strategy:     StrategyMerge,
		Data:         merged,
		ShouldUpdate: !payloadEqual(merged, c.RemoteData),
		Reason:       "field-level merge of divergent edits",
	}
}

// mergeArrays union-merges two arrays. Elements carrying an "id" field match
// by id: local entries replace remote entries sharing the id, unmatched local
// entries are appended. Elements without an id match by exact value.
func mergeArrays(local, remote []any) []any {
	out := make([]any, len(remote))
	copy(out, remote)

	for _, lv := range local {
		if id, ok := elementID(lv); ok {
			replaced := false
			for i, rv := range out {
				if rid, ok := elementID(rv); ok && rid == id {
					out[i] = lv
					replaced = true
					break
				}
			}
			if !replaced {
				out = append(out, lv)
			}
			continue
		}
		present := false
		for _, rv := range out {
			if valueEqual(lv, rv) {
				present = true
				break
			}
		}
		if !present {
			out = append(out, lv)
		}
	}
	return out
}

// mergeObjects merges one nested level with local values taking precedence
// key-by-key. It does not recurse further.
func mergeObjects(local, remote map[string]any) map[string]any {
	out := make(map[string]any, len(remote)+len(local))
	for k, v := range remote {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

func elementID(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := obj["id"]
	if !ok {
		return "", false
	}
	b, err := json.Marshal(id)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// payloadEqual compares two records by canonical JSON form, so insertion
// order and numeric representation do not produce false differences.
func payloadEqual(a, b map[string]any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ab, bb)
}

func valueEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ab, bb)
}
