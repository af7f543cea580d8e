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

package fsimage

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ota-uptane/primary/pkg/pkgmanager"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

func writeBlob(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestManager_GetCurrentBeforeInstallIsEmpty(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "images"))
	current, err := m.GetCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", current)
}

func TestManager_InstallWritesImageAndRecordsHash(t *testing.T) {
	content := []byte("firmware bytes")
	sum := sha256.Sum256(content)
	blobPath := writeBlob(t, content)

	m := New(filepath.Join(t.TempDir(), "images"))
	target := data.ResolvedTarget{Filename: "firmware.bin", Hashes: data.Hashes{"sha256": sum[:]}}

	outcome, err := m.Install(context.Background(), target, blobPath)
	require.NoError(t, err)
	assert.Equal(t, pkgmanager.OK, outcome.Code)

	got, err := os.ReadFile(m.currentImagePath())
	require.NoError(t, err)
	assert.Equal(t, content, got)

	current, err := m.GetCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sumHex(sum[:]), current)
}

func TestManager_InstallRejectsTargetWithNoSHA256(t *testing.T) {
	blobPath := writeBlob(t, []byte("anything"))
	m := New(filepath.Join(t.TempDir(), "images"))
	target := data.ResolvedTarget{Filename: "firmware.bin", Hashes: data.Hashes{}}

	outcome, err := m.Install(context.Background(), target, blobPath)
	require.NoError(t, err)
	assert.Equal(t, pkgmanager.VerificationFailed, outcome.Code)
}

func TestManager_InstallFailsOnMissingBlob(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "images"))
	target := data.ResolvedTarget{Filename: "firmware.bin", Hashes: data.Hashes{"sha256": []byte{1, 2, 3}}}

	outcome, err := m.Install(context.Background(), target, filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Equal(t, pkgmanager.DownloadFailed, outcome.Code)
}

func TestManager_InstallOverwritesPreviousImage(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "images"))

	firstSum := sha256.Sum256([]byte("v1"))
	_, err := m.Install(context.Background(), data.ResolvedTarget{Hashes: data.Hashes{"sha256": firstSum[:]}}, writeBlob(t, []byte("v1")))
	require.NoError(t, err)

	secondSum := sha256.Sum256([]byte("v2 is longer"))
	outcome, err := m.Install(context.Background(), data.ResolvedTarget{Hashes: data.Hashes{"sha256": secondSum[:]}}, writeBlob(t, []byte("v2 is longer")))
	require.NoError(t, err)
	assert.Equal(t, pkgmanager.OK, outcome.Code)

	got, err := os.ReadFile(m.currentImagePath())
	require.NoError(t, err)
	assert.Equal(t, []byte("v2 is longer"), got)

	current, err := m.GetCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sumHex(secondSum[:]), current)
}

func sumHex(sum []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}
