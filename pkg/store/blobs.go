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
	"os"
	"path/filepath"
)

// BlobStore is the target blob store spec.md §3/§5 describes: append-
// only during a cycle, opaque bytes under an opaque filename key, with
// GC running only between cycles. It is a narrow filesystem-backed
// collaborator, not a MetadataStore: target content is never re-hashed
// against a role document once persisted, just fetched by path.
type BlobStore interface {
	// Path returns the on-disk location FetchTarget should write
	// filename's bytes to, creating parent directories as needed.
	Path(filename string) (string, error)
	// Size reports how many bytes are already on disk for filename,
	// the resume offset a partial prior download left behind.
	Size(filename string) (int64, error)
	// Invalidate marks filename's blob as unusable without deleting it,
	// per spec.md §4.4 ("the partial file is kept but marked invalid
	// and the next retry restarts from offset 0"): it truncates the
	// file to zero bytes so a subsequent Size call reports a 0 resume
	// offset, without a separate persisted "valid" bit.
	Invalidate(filename string) error
	// Remove deletes filename's blob entirely, used by GC once no
	// manifest references it (spec.md §3).
	Remove(filename string) error
	// GC deletes every blob not named in keep. Callers must only
	// invoke this between cycles (spec.md §5: "GC runs only when no
	// cycle is active").
	GC(keep map[string]bool) error
}

// FileBlobStore is the default BlobStore, one file per target filename
// under a base directory.
type FileBlobStore struct {
	baseDir string
}

// NewFileBlobStore returns a FileBlobStore rooted at baseDir, creating
// it if absent.
func NewFileBlobStore(baseDir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: creating blob dir: %w", err)
	}
	return &FileBlobStore{baseDir: baseDir}, nil
}

func (b *FileBlobStore) path(filename string) string {
	return filepath.Join(b.baseDir, filepath.Base(filename))
}

func (b *FileBlobStore) Path(filename string) (string, error) {
	return b.path(filename), nil
}

func (b *FileBlobStore) Size(filename string) (int64, error) {
	fi, err := os.Stat(b.path(filename))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (b *FileBlobStore) Invalidate(filename string) error {
	f, err := os.OpenFile(b.path(filename), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	return f.Close()
}

func (b *FileBlobStore) Remove(filename string) error {
	err := os.Remove(b.path(filename))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *FileBlobStore) GC(keep map[string]bool) error {
	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || keep[e.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(b.baseDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

var _ BlobStore = (*FileBlobStore)(nil)
