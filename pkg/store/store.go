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

// Package store implements the metadata store and persisted-state
// contracts of spec.md §6: a keyed blob store for role documents, the
// ECU→installed-hash map, and the primary's own key pair, with an
// in-memory implementation and a file-backed one.
package store

import (
	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// MetadataStore is the keyed blob store spec.md §6 describes: role
// documents keyed by (repo, role, version). Put writes through at once
// in both implementations here (Memory, File); neither buffers writes
// within a cycle or commits them as one batch at cycle end. It also
// satisfies pkg/uptane/verifier.MetadataStore.
type MetadataStore interface {
	Put(repo data.RepoKind, role data.RoleName, version int64, raw []byte) error
	Get(repo data.RepoKind, role data.RoleName) (raw []byte, version int64, found bool, err error)
	GetVersion(repo data.RepoKind, role data.RoleName, version int64) (raw []byte, found bool, err error)
	LatestVersion(repo data.RepoKind, role data.RoleName) (int64, bool, error)
}

// DeviceState is the persisted, non-role state: the current
// ECU→installed-hash map and the primary's signing key pair reference.
type DeviceState interface {
	InstalledHashes() (map[data.EcuSerial]string, error)
	SetInstalledHash(serial data.EcuSerial, hash string) error
	PrimaryKeyPair() (ucrypto.KeyPair, error)
}
