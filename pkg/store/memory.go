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

package store

import (
	"fmt"
	"sync"

	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

type roleEntry struct {
	raw     []byte
	version int64
}

// Memory is an in-memory MetadataStore + DeviceState, used by tests and
// by short-lived processes with no durability requirement.
type Memory struct {
	mu       sync.RWMutex
	latest   map[string]roleEntry
	versions map[string][]byte
	hashes   map[data.EcuSerial]string
	keyPair  ucrypto.KeyPair
}

// NewMemory returns an empty Memory store seeded with keyPair as the
// primary's signing identity.
func NewMemory(keyPair ucrypto.KeyPair) *Memory {
	return &Memory{
		latest:   make(map[string]roleEntry),
		versions: make(map[string][]byte),
		hashes:   make(map[data.EcuSerial]string),
		keyPair:  keyPair,
	}
}

func roleKey(repo data.RepoKind, role data.RoleName) string {
	return fmt.Sprintf("%s/%s", repo, role)
}

func versionKey(repo data.RepoKind, role data.RoleName, version int64) string {
	return fmt.Sprintf("%s/%s@%d", repo, role, version)
}

func (m *Memory) Put(repo data.RepoKind, role data.RoleName, version int64, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := roleKey(repo, role)
	if existing, ok := m.latest[key]; !ok || version >= existing.version {
		m.latest[key] = roleEntry{raw: raw, version: version}
	}
	m.versions[versionKey(repo, role, version)] = raw
	return nil
}

func (m *Memory) Get(repo data.RepoKind, role data.RoleName) ([]byte, int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.latest[roleKey(repo, role)]
	if !ok {
		return nil, 0, false, nil
	}
	return e.raw, e.version, true, nil
}

func (m *Memory) GetVersion(repo data.RepoKind, role data.RoleName, version int64) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.versions[versionKey(repo, role, version)]
	return raw, ok, nil
}

func (m *Memory) LatestVersion(repo data.RepoKind, role data.RoleName) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.latest[roleKey(repo, role)]
	if !ok {
		return 0, false, nil
	}
	return e.version, true, nil
}

func (m *Memory) InstalledHashes() (map[data.EcuSerial]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[data.EcuSerial]string, len(m.hashes))
	for k, v := range m.hashes {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SetInstalledHash(serial data.EcuSerial, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[serial] = hash
	return nil
}

func (m *Memory) PrimaryKeyPair() (ucrypto.KeyPair, error) {
	return m.keyPair, nil
}

var (
	_ MetadataStore = (*Memory)(nil)
	_ DeviceState    = (*Memory)(nil)
)
