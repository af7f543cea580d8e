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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlobStore(t *testing.T) *FileBlobStore {
	t.Helper()
	b, err := NewFileBlobStore(t.TempDir())
	require.NoError(t, err)
	return b
}

func TestFileBlobStore_SizeOfMissingBlobIsZero(t *testing.T) {
	b := newBlobStore(t)
	size, err := b.Size("firmware.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestFileBlobStore_SizeReflectsWrittenBytes(t *testing.T) {
	b := newBlobStore(t)
	path, err := b.Path("firmware.bin")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	size, err := b.Size("firmware.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
}

func TestFileBlobStore_PathIgnoresDirectoryComponents(t *testing.T) {
	b := newBlobStore(t)
	path, err := b.Path("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(b.baseDir, "passwd"), path)
}

func TestFileBlobStore_InvalidateTruncatesRatherThanDeletes(t *testing.T) {
	b := newBlobStore(t)
	path, err := b.Path("firmware.bin")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("partial content"), 0o600))

	require.NoError(t, b.Invalidate("firmware.bin"))

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "invalidate must keep the file in place")

	size, err := b.Size("firmware.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(0), size, "next resume attempt must restart from offset 0")
}

func TestFileBlobStore_RemoveDeletesBlob(t *testing.T) {
	b := newBlobStore(t)
	path, err := b.Path("firmware.bin")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("bytes"), 0o600))

	require.NoError(t, b.Remove("firmware.bin"))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileBlobStore_RemoveMissingBlobIsNotAnError(t *testing.T) {
	b := newBlobStore(t)
	assert.NoError(t, b.Remove("never-existed.bin"))
}

func TestFileBlobStore_GCKeepsOnlyNamedBlobs(t *testing.T) {
	b := newBlobStore(t)
	for _, name := range []string{"keep-me.bin", "drop-me.bin"} {
		path, err := b.Path(name)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	}

	require.NoError(t, b.GC(map[string]bool{"keep-me.bin": true}))

	keepPath, _ := b.Path("keep-me.bin")
	_, err := os.Stat(keepPath)
	assert.NoError(t, err)

	dropPath, _ := b.Path("drop-me.bin")
	_, err = os.Stat(dropPath)
	assert.True(t, os.IsNotExist(err))
}
