// Copyright 2024 The go-uptane Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package verifier implements the Uptane chain-of-trust: root rotation,
// timestamp/snapshot/targets validation against the current root, and
// the delegated-targets walk, per spec.md §4.
package verifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// Clock returns the current time used for expiry checks. UpdateRepository
// reads it once per call and uses that instant for every expiry check in
// that repository's pass. Each repository's call, and the resolver's
// delegation walk, takes its own reading, so one cycle may see more than
// one instant.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

// Now returns time.Now().UTC().
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RepositoryState is the verified, in-memory result of one successful
// UpdateRepository call.
type RepositoryState struct {
	Root      *data.Root
	Timestamp *data.Timestamp
	Snapshot  *data.Snapshot
	Targets   *data.Targets

	// Unchanged is true when the fetched timestamp's version matched the
	// persisted one: snapshot and targets were not re-fetched, and
	// Snapshot/Targets on this value are nil. Callers that still need the
	// persisted Targets document load it with LoadPersistedTargets.
	Unchanged bool
}

// UpdateRepository runs one full verification cycle against repo: root
// rotation, then timestamp, then (if changed) snapshot and top-level
// targets, each checked against the immediately preceding role in the
// chain. All fetched bytes are buffered locally and committed to store
// only once the whole chain has validated, so a failure partway through
// leaves the persisted state untouched.
func UpdateRepository(ctx context.Context, repo data.RepoKind, fetcher RoleFetcher, store MetadataStore, clock Clock) (*RepositoryState, error) {
	now := clock.Now()

	persistedRoot, err := loadRoot(repo, store)
	if err != nil {
		return nil, err
	}

	newRoot, rootChain, err := rotateRoot(ctx, repo, fetcher, persistedRoot, now)
	if err != nil {
		return nil, err
	}

	tsAuth, ok := authorityFor(newRoot, data.RoleTimestamp)
	if !ok {
		return nil, newErr(UnknownRole, repo, data.RoleTimestamp, "root declares no timestamp role")
	}
	tsRaw, err := fetcher.FetchRole(ctx, repo, data.RoleTimestamp, nil)
	if err != nil {
		return nil, err
	}
	tsEnv, err := decodeEnvelope(repo, data.RoleTimestamp, tsRaw)
	if err != nil {
		return nil, err
	}
	if _, err := VerifySigned(repo, data.RoleTimestamp, tsEnv, tsAuth); err != nil {
		return nil, err
	}
	var newTimestamp data.Timestamp
	if err := json.Unmarshal(tsEnv.Signed, &newTimestamp); err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleTimestamp, "unmarshaling timestamp: %v", err)
	}
	if !newTimestamp.Expires.After(now) {
		return nil, newErr(Expired, repo, data.RoleTimestamp, "timestamp expired at %s", newTimestamp.Expires)
	}

	_, persistedTSVersion, haveTS, err := store.Get(repo, data.RoleTimestamp)
	if err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleTimestamp, "reading persisted timestamp: %v", err)
	}
	if haveTS && newTimestamp.Version < persistedTSVersion {
		return nil, newErr(VersionRollback, repo, data.RoleTimestamp, "persisted version %d, fetched %d", persistedTSVersion, newTimestamp.Version)
	}

	if haveTS && newTimestamp.Version == persistedTSVersion {
		if err := commitRootChain(repo, store, rootChain); err != nil {
			return nil, err
		}
		return &RepositoryState{Root: newRoot, Timestamp: &newTimestamp, Unchanged: true}, nil
	}

	snapAuth, ok := authorityFor(newRoot, data.RoleSnapshot)
	if !ok {
		return nil, newErr(UnknownRole, repo, data.RoleSnapshot, "root declares no snapshot role")
	}
	snapVersion := newTimestamp.SnapshotMeta.Version
	snapRaw, err := fetcher.FetchRole(ctx, repo, data.RoleSnapshot, &snapVersion)
	if err != nil {
		return nil, err
	}
	if err := checkFileMeta(repo, data.RoleSnapshot, snapRaw, newTimestamp.SnapshotMeta.Length, newTimestamp.SnapshotMeta.Hashes); err != nil {
		return nil, err
	}
	snapEnv, err := decodeEnvelope(repo, data.RoleSnapshot, snapRaw)
	if err != nil {
		return nil, err
	}
	if _, err := VerifySigned(repo, data.RoleSnapshot, snapEnv, snapAuth); err != nil {
		return nil, err
	}
	var newSnapshot data.Snapshot
	if err := json.Unmarshal(snapEnv.Signed, &newSnapshot); err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleSnapshot, "unmarshaling snapshot: %v", err)
	}
	if !newSnapshot.Expires.After(now) {
		return nil, newErr(Expired, repo, data.RoleSnapshot, "snapshot expired at %s", newSnapshot.Expires)
	}
	if newSnapshot.Version != snapVersion {
		return nil, newErr(VersionRollback, repo, data.RoleSnapshot, "expected version %d, got %d", snapVersion, newSnapshot.Version)
	}

	_, persistedSnapVersion, haveSnap, err := store.Get(repo, data.RoleSnapshot)
	if err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleSnapshot, "reading persisted snapshot: %v", err)
	}
	if haveSnap && newSnapshot.Version < persistedSnapVersion {
		return nil, newErr(VersionRollback, repo, data.RoleSnapshot, "persisted version %d, fetched %d", persistedSnapVersion, newSnapshot.Version)
	}

	targetsMeta, ok := newSnapshot.Meta[data.RoleTargets]
	if !ok {
		return nil, newErr(UnknownRole, repo, data.RoleTargets, "snapshot carries no targets entry")
	}

	targetsAuth, ok := authorityFor(newRoot, data.RoleTargets)
	if !ok {
		return nil, newErr(UnknownRole, repo, data.RoleTargets, "root declares no targets role")
	}
	tgtVersion := targetsMeta.Version
	tgtRaw, err := fetcher.FetchRole(ctx, repo, data.RoleTargets, &tgtVersion)
	if err != nil {
		return nil, err
	}
	if targetsMeta.Length != nil {
		if err := checkFileMeta(repo, data.RoleTargets, tgtRaw, *targetsMeta.Length, targetsMeta.Hashes); err != nil {
			return nil, err
		}
	}
	tgtEnv, err := decodeEnvelope(repo, data.RoleTargets, tgtRaw)
	if err != nil {
		return nil, err
	}
	if _, err := VerifySigned(repo, data.RoleTargets, tgtEnv, targetsAuth); err != nil {
		return nil, err
	}
	var newTargets data.Targets
	if err := json.Unmarshal(tgtEnv.Signed, &newTargets); err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleTargets, "unmarshaling targets: %v", err)
	}
	if !newTargets.Expires.After(now) {
		return nil, newErr(Expired, repo, data.RoleTargets, "targets expired at %s", newTargets.Expires)
	}
	if newTargets.Version != tgtVersion {
		return nil, newErr(VersionRollback, repo, data.RoleTargets, "expected version %d, got %d", tgtVersion, newTargets.Version)
	}

	if err := commitRootChain(repo, store, rootChain); err != nil {
		return nil, err
	}
	if err := store.Put(repo, data.RoleTimestamp, newTimestamp.Version, tsRaw); err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleTimestamp, "persisting timestamp: %v", err)
	}
	if err := store.Put(repo, data.RoleSnapshot, newSnapshot.Version, snapRaw); err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleSnapshot, "persisting snapshot: %v", err)
	}
	if err := store.Put(repo, data.RoleTargets, newTargets.Version, tgtRaw); err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleTargets, "persisting targets: %v", err)
	}

	return &RepositoryState{
		Root:      newRoot,
		Timestamp: &newTimestamp,
		Snapshot:  &newSnapshot,
		Targets:   &newTargets,
	}, nil
}

func loadRoot(repo data.RepoKind, store MetadataStore) (*data.Root, error) {
	raw, _, found, err := store.Get(repo, data.RoleRoot)
	if err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleRoot, "reading persisted root: %v", err)
	}
	if !found {
		return nil, newErr(UnknownRole, repo, data.RoleRoot, "no persisted root; device must be provisioned with an initial trusted root")
	}
	env, err := decodeEnvelope(repo, data.RoleRoot, raw)
	if err != nil {
		return nil, err
	}
	var root data.Root
	if err := json.Unmarshal(env.Signed, &root); err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleRoot, "unmarshaling persisted root: %v", err)
	}
	return &root, nil
}

// LoadPersistedTargets decodes the last-persisted top-level Targets
// document for repo out of store, without re-verifying it (the bytes
// were already verified before being persisted). Callers use this when
// a cycle's UpdateRepository call reported Unchanged and they still
// need the Targets struct to drive target resolution.
func LoadPersistedTargets(repo data.RepoKind, store MetadataStore) (*data.Targets, error) {
	raw, _, found, err := store.Get(repo, data.RoleTargets)
	if err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleTargets, "reading persisted targets: %v", err)
	}
	if !found {
		return nil, newErr(UnknownRole, repo, data.RoleTargets, "no persisted targets")
	}
	env, err := decodeEnvelope(repo, data.RoleTargets, raw)
	if err != nil {
		return nil, err
	}
	var targets data.Targets
	if err := json.Unmarshal(env.Signed, &targets); err != nil {
		return nil, newErr(MalformedDocument, repo, data.RoleTargets, "unmarshaling persisted targets: %v", err)
	}
	return &targets, nil
}

func commitRootChain(repo data.RepoKind, store MetadataStore, chain []versionedRaw) error {
	for _, vr := range chain {
		if err := store.Put(repo, data.RoleRoot, vr.version, vr.raw); err != nil {
			return newErr(MalformedDocument, repo, data.RoleRoot, "persisting root version %d: %v", vr.version, err)
		}
	}
	return nil
}

// checkFileMeta verifies raw's length and hashes against an expected
// FileMeta entry from the enclosing role (spec.md §4.3: every child
// metadata file's content must match what its parent declared before
// its own signatures are even checked).
func checkFileMeta(repo data.RepoKind, role data.RoleName, raw []byte, wantLength int64, wantHashes data.Hashes) error {
	if wantLength != 0 && int64(len(raw)) != wantLength {
		return newErr(LengthMismatch, repo, role, "expected %d bytes, got %d", wantLength, len(raw))
	}
	for alg, want := range wantHashes {
		got, err := hashRaw(alg, raw)
		if err != nil {
			return newErr(MalformedDocument, repo, role, "hashing with %s: %v", alg, err)
		}
		if !hashesEqual(got, want) {
			return newErr(HashMismatch, repo, role, "%s hash mismatch", alg)
		}
	}
	return nil
}
