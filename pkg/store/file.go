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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// File is a directory-backed MetadataStore + DeviceState: role
// documents are opaque bytes under opaque keys on disk, per spec.md §6
// ("file layout is not part of the spec beyond opaque bytes under
// opaque keys"). Each role version is its own file; a small JSON index
// file tracks the latest version per (repo, role) so Get doesn't need
// a directory scan.
type File struct {
	mu      sync.Mutex
	baseDir string
	keyPair ucrypto.KeyPair
}

type fileIndex struct {
	Latest  map[string]int64            `json:"latest"`
	Hashes  map[data.EcuSerial]string   `json:"hashes"`
}

// NewFile opens (creating if absent) a File store rooted at baseDir.
func NewFile(baseDir string, keyPair ucrypto.KeyPair) (*File, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: creating base dir: %w", err)
	}
	return &File{baseDir: baseDir, keyPair: keyPair}, nil
}

func (f *File) indexPath() string { return filepath.Join(f.baseDir, "index.json") }

func (f *File) roleDir(repo data.RepoKind, role data.RoleName) string {
	return filepath.Join(f.baseDir, string(repo), string(role))
}

func (f *File) rolePath(repo data.RepoKind, role data.RoleName, version int64) string {
	return filepath.Join(f.roleDir(repo, role), fmt.Sprintf("%d.json", version))
}

func (f *File) readIndex() (fileIndex, error) {
	idx := fileIndex{Latest: map[string]int64{}, Hashes: map[data.EcuSerial]string{}}
	raw, err := os.ReadFile(f.indexPath())
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(raw, &idx); err != nil {
		return idx, err
	}
	if idx.Latest == nil {
		idx.Latest = map[string]int64{}
	}
	if idx.Hashes == nil {
		idx.Hashes = map[data.EcuSerial]string{}
	}
	return idx, nil
}

func (f *File) writeIndex(idx fileIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	tmp := f.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.indexPath())
}

func (f *File) Put(repo data.RepoKind, role data.RoleName, version int64, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.roleDir(repo, role), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(f.rolePath(repo, role, version), raw, 0o600); err != nil {
		return err
	}

	idx, err := f.readIndex()
	if err != nil {
		return err
	}
	key := roleKey(repo, role)
	if cur, ok := idx.Latest[key]; !ok || version >= cur {
		idx.Latest[key] = version
	}
	return f.writeIndex(idx)
}

func (f *File) Get(repo data.RepoKind, role data.RoleName) ([]byte, int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx, err := f.readIndex()
	if err != nil {
		return nil, 0, false, err
	}
	version, ok := idx.Latest[roleKey(repo, role)]
	if !ok {
		return nil, 0, false, nil
	}
	raw, err := os.ReadFile(f.rolePath(repo, role, version))
	if err != nil {
		return nil, 0, false, err
	}
	return raw, version, true, nil
}

func (f *File) GetVersion(repo data.RepoKind, role data.RoleName, version int64) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.rolePath(repo, role, version))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (f *File) LatestVersion(repo data.RepoKind, role data.RoleName) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, err := f.readIndex()
	if err != nil {
		return 0, false, err
	}
	v, ok := idx.Latest[roleKey(repo, role)]
	return v, ok, nil
}

func (f *File) InstalledHashes() (map[data.EcuSerial]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, err := f.readIndex()
	if err != nil {
		return nil, err
	}
	out := make(map[data.EcuSerial]string, len(idx.Hashes))
	for k, v := range idx.Hashes {
		out[k] = v
	}
	return out, nil
}

func (f *File) SetInstalledHash(serial data.EcuSerial, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, err := f.readIndex()
	if err != nil {
		return err
	}
	idx.Hashes[serial] = hash
	return f.writeIndex(idx)
}

func (f *File) PrimaryKeyPair() (ucrypto.KeyPair, error) {
	return f.keyPair, nil
}

var (
	_ MetadataStore = (*File)(nil)
	_ DeviceState    = (*File)(nil)
)
