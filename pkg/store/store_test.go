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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

func testKeyPair(t *testing.T) ucrypto.KeyPair {
	t.Helper()
	kp, err := ucrypto.GenerateKeypair(ucrypto.KeyTypeEd25519)
	require.NoError(t, err)
	return kp
}

func TestMemory_PutGetRoundTrip(t *testing.T) {
	m := NewMemory(testKeyPair(t))
	require.NoError(t, m.Put(data.RepoImage, data.RoleRoot, 1, []byte("v1")))
	require.NoError(t, m.Put(data.RepoImage, data.RoleRoot, 2, []byte("v2")))

	raw, version, found, err := m.Get(data.RepoImage, data.RoleRoot)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, "v2", string(raw))

	v1, ok, err := m.GetVersion(data.RepoImage, data.RoleRoot, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(v1))
}

func TestFile_PutGetRoundTrip(t *testing.T) {
	f, err := NewFile(t.TempDir(), testKeyPair(t))
	require.NoError(t, err)

	require.NoError(t, f.Put(data.RepoDirector, data.RoleTimestamp, 5, []byte("ts-5")))
	raw, version, found, err := f.Get(data.RepoDirector, data.RoleTimestamp)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5), version)
	assert.Equal(t, "ts-5", string(raw))

	require.NoError(t, f.SetInstalledHash("ecu-a", "deadbeef"))
	hashes, err := f.InstalledHashes()
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", hashes[data.EcuSerial("ecu-a")])
}
