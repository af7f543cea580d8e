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

// Package data holds typed representations of the four Uptane roles
// (Root, Timestamp, Snapshot, Targets) and delegated-targets trees, per
// spec.md §3.
package data

import (
	"encoding/json"
	"time"

	tufdata "github.com/theupdateframework/go-tuf/data"

	"github.com/ota-uptane/primary/internal/canon"
	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
)

// HexBytes and Hashes reuse go-tuf's leaf types: a hash value is hex
// bytes keyed by algorithm name ("sha256", "sha512").
type (
	HexBytes = tufdata.HexBytes
	Hashes   = tufdata.Hashes
)

// RoleName identifies one of the four top-level roles, or a delegated
// targets role by its declared name.
type RoleName string

const (
	RoleRoot      RoleName = "root"
	RoleTimestamp RoleName = "timestamp"
	RoleSnapshot  RoleName = "snapshot"
	RoleTargets   RoleName = "targets"
)

// RepoKind distinguishes the two repositories an Uptane device talks to.
type RepoKind string

const (
	RepoImage    RepoKind = "image"
	RepoDirector RepoKind = "director"
)

// Signature is {key-id, method, hex bytes}, per spec.md §3.
type Signature struct {
	KeyID  string   `json:"keyid"`
	Method string   `json:"method"`
	Sig    HexBytes `json:"sig"`
}

// Envelope is a signed document: a pair (signed-body, signatures).
// Signed is kept as raw JSON so the verifier can canonicalize and hash
// it independently of how this process happens to re-marshal structs.
type Envelope struct {
	Signed     json.RawMessage `json:"signed"`
	Signatures []Signature     `json:"signatures"`
}

// CanonicalSignedBytes returns the canonical JSON encoding of the signed
// body, i.e. the exact bytes signatures are computed over.
func (e Envelope) CanonicalSignedBytes() ([]byte, error) {
	var generic interface{}
	if err := json.Unmarshal(e.Signed, &generic); err != nil {
		return nil, err
	}
	return canon.Encode(generic)
}

// SignedCommon is the set of fields every signed body carries.
type SignedCommon struct {
	Type    RoleName  `json:"_type"`
	Version int64     `json:"version"`
	Expires time.Time `json:"expires"`
}

// RootRole declares the authority for one role: threshold and the
// ordered set of authorized key-ids.
type RootRole struct {
	Threshold int      `json:"threshold"`
	KeyIDs    []string `json:"keyids"`
}

// Root is the trust anchor: a mapping from role-name to RootRole plus
// the key-id -> PublicKey mapping backing it.
type Root struct {
	SignedCommon
	Roles              map[RoleName]RootRole         `json:"roles"`
	Keys               map[string]ucrypto.PublicKey  `json:"keys"`
	ConsistentSnapshot bool                          `json:"consistent_snapshot,omitempty"`
}

// SnapshotFileRef is the timestamp's single content-addressed pointer to
// the current snapshot.
type SnapshotFileRef struct {
	Length  int64   `json:"length"`
	Hashes  Hashes  `json:"hashes"`
	Version int64   `json:"version"`
}

// Timestamp points at the current snapshot.
type Timestamp struct {
	SignedCommon
	SnapshotMeta SnapshotFileRef `json:"snapshot_meta"`
}

// TargetsFileMeta is an entry in the Snapshot role's mapping from
// targets-role-name to version (and optionally length/hashes).
type TargetsFileMeta struct {
	Version int64   `json:"version"`
	Length  *int64  `json:"length,omitempty"`
	Hashes  Hashes  `json:"hashes,omitempty"`
}

// Snapshot is a mapping from targets-role-name to TargetsFileMeta.
type Snapshot struct {
	SignedCommon
	Meta map[RoleName]TargetsFileMeta `json:"meta"`
}

// TargetCustom carries the custom fields spec.md §3 requires: the
// intended ECU identifier and hardware id, plus whatever else the
// server attached (preserved in Raw for forward compatibility, e.g. the
// sigstore-style "custom.sigstore" shape other targets ecosystems use).
type TargetCustom struct {
	EcuSerial  string          `json:"ecuIdentifier,omitempty"`
	HardwareID string          `json:"hardwareId,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

func (c *TargetCustom) UnmarshalJSON(b []byte) error {
	type alias TargetCustom
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*c = TargetCustom(a)
	c.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (c TargetCustom) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	type alias TargetCustom
	return json.Marshal(alias(c))
}

// TargetFileMeta is a single entry in a Targets role's mapping from
// target-path to {length, hash set, custom}.
type TargetFileMeta struct {
	Length int64         `json:"length"`
	Hashes Hashes        `json:"hashes"`
	Custom *TargetCustom `json:"custom,omitempty"`
}

// DelegatedRole declares one child targets role: its keys, threshold,
// and path-pattern restrictions.
type DelegatedRole struct {
	Name        RoleName `json:"name"`
	KeyIDs      []string `json:"keyids"`
	Threshold   int      `json:"threshold"`
	Paths       []string `json:"paths"`
	Terminating bool     `json:"terminating"`
}

// Delegations is the optional block a Targets role may carry, declaring
// child targets roles with their keys, thresholds, and path patterns.
type Delegations struct {
	Keys  map[string]ucrypto.PublicKey `json:"keys"`
	Roles []DelegatedRole              `json:"roles"`
}

// Targets maps target-path to TargetFileMeta, with an optional
// delegations block.
type Targets struct {
	SignedCommon
	Targets     map[string]TargetFileMeta `json:"targets"`
	Delegations *Delegations              `json:"delegations,omitempty"`
}
