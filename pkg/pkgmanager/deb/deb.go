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

// Package deb implements the pkgmanager.PackageManager collaborator by
// shelling out to dpkg, modeled on original_source/src/deb.cc. dpkg's
// status database is process-wide state (the C++ original calls
// dpkg_program_init/modstatdb_open before touching it and
// dpkg_program_done after); this package mirrors that with an
// in-process mutex held for the duration of one Install or GetCurrent
// call and always released, per spec.md §9 "Global dpkg state". It
// takes no file lock of its own; "dpkg -i" takes dpkg's lock itself.
package deb

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ota-uptane/primary/pkg/pkgmanager"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// Manager installs .deb targets via "dpkg -i" and tracks the currently
// installed target's hash in <path>/targets/installed, mirroring
// DebianManager::getCurrent/install in original_source/src/deb.cc.
type Manager struct {
	path   string
	dpkg   string
	logger *zap.SugaredLogger

	// mu serializes access to the dpkg status database within this
	// process; the C++ original relies on dpkg's own lock file for
	// cross-process exclusion, which "dpkg -i" still takes out itself.
	mu sync.Mutex
}

// New returns a Manager rooted at path (holding "targets/installed" and
// accepting incoming package files under "targets/"). dpkgBin overrides
// the dpkg binary name, mainly for tests; empty uses "dpkg".
func New(path string, dpkgBin string, logger *zap.SugaredLogger) *Manager {
	if dpkgBin == "" {
		dpkgBin = "dpkg"
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{path: path, dpkg: dpkgBin, logger: logger}
}

func (m *Manager) installedPath() string { return filepath.Join(m.path, "targets", "installed") }
func (m *Manager) targetPath(filename string) string {
	return filepath.Join(m.path, "targets", filepath.Base(filename))
}

// Install shells out to "dpkg -i <blobPath>", then records target's
// SHA-256 as the currently installed hash on success.
func (m *Manager) Install(ctx context.Context, target data.ResolvedTarget, blobPath string) (pkgmanager.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(m.path, "targets"), 0o700); err != nil {
		return pkgmanager.Outcome{Code: pkgmanager.InstallFailed, Message: err.Error()}, nil
	}

	cmd := exec.CommandContext(ctx, m.dpkg, "-i", blobPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		m.logger.Warnw("dpkg -i failed", "target", target.Filename, "output", strings.TrimSpace(string(out)), "error", err)
		return pkgmanager.Outcome{Code: pkgmanager.InstallFailed, Message: strings.TrimSpace(string(out))}, nil
	}

	hash, ok := target.Hashes["sha256"]
	if !ok {
		return pkgmanager.Outcome{Code: pkgmanager.VerificationFailed, Message: "target declares no sha256 hash"}, nil
	}
	if err := os.WriteFile(m.installedPath(), []byte(fmt.Sprintf("%x", hash)), 0o600); err != nil {
		return pkgmanager.Outcome{Code: pkgmanager.InstallFailed, Message: err.Error()}, nil
	}
	m.logger.Infow("installed debian package", "target", target.Filename)
	return pkgmanager.Outcome{Code: pkgmanager.OK, Message: "dpkg -i succeeded"}, nil
}

// GetCurrent returns the SHA-256 hex digest of the last successfully
// installed target, or "" if none has ever been installed.
func (m *Manager) GetCurrent(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := os.ReadFile(m.installedPath())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("deb: reading installed marker: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

var _ pkgmanager.PackageManager = (*Manager)(nil)
