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

// Package fsimage implements a dependency-free pkgmanager.PackageManager
// that writes a target's bytes verbatim to a path and records its hash
// as "current". It has no analog in original_source (aktualizr's
// package managers are all OS-specific); it exists so the orchestrator
// can be exercised against a second, distinct backend besides deb, and
// so tests and secondary-less deployments have a usable default.
package fsimage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ota-uptane/primary/pkg/pkgmanager"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// Manager writes installed images under <path>/current and tracks the
// installed hash in <path>/installed.
type Manager struct {
	path string
	mu   sync.Mutex
}

// New returns a Manager rooted at path.
func New(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) currentImagePath() string { return filepath.Join(m.path, "current") }
func (m *Manager) installedMarkerPath() string { return filepath.Join(m.path, "installed") }

// Install copies the blob at blobPath into the managed image path and
// records target's SHA-256 as installed.
func (m *Manager) Install(ctx context.Context, target data.ResolvedTarget, blobPath string) (pkgmanager.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.path, 0o700); err != nil {
		return pkgmanager.Outcome{Code: pkgmanager.InstallFailed, Message: err.Error()}, nil
	}

	src, err := os.Open(blobPath)
	if err != nil {
		return pkgmanager.Outcome{Code: pkgmanager.DownloadFailed, Message: err.Error()}, nil
	}
	defer src.Close()

	tmp := m.currentImagePath() + ".tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return pkgmanager.Outcome{Code: pkgmanager.InstallFailed, Message: err.Error()}, nil
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return pkgmanager.Outcome{Code: pkgmanager.InstallFailed, Message: err.Error()}, nil
	}
	if err := dst.Close(); err != nil {
		return pkgmanager.Outcome{Code: pkgmanager.InstallFailed, Message: err.Error()}, nil
	}
	if err := os.Rename(tmp, m.currentImagePath()); err != nil {
		return pkgmanager.Outcome{Code: pkgmanager.InstallFailed, Message: err.Error()}, nil
	}

	hash, ok := target.Hashes["sha256"]
	if !ok {
		return pkgmanager.Outcome{Code: pkgmanager.VerificationFailed, Message: "target declares no sha256 hash"}, nil
	}
	if err := os.WriteFile(m.installedMarkerPath(), []byte(fmt.Sprintf("%x", hash)), 0o600); err != nil {
		return pkgmanager.Outcome{Code: pkgmanager.InstallFailed, Message: err.Error()}, nil
	}
	return pkgmanager.Outcome{Code: pkgmanager.OK, Message: "image written"}, nil
}

// GetCurrent returns the SHA-256 hex digest of the currently installed
// image, or "" if none has ever been installed.
func (m *Manager) GetCurrent(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := os.ReadFile(m.installedMarkerPath())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fsimage: reading installed marker: %w", err)
	}
	return string(raw), nil
}

var _ pkgmanager.PackageManager = (*Manager)(nil)
