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

package secondary

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

func TestInMemory_InstallAndManifestRoundTrip(t *testing.T) {
	s, err := NewInMemory("ecu-a", "hw-a")
	require.NoError(t, err)
	s.SetNonce("fixed-nonce")

	desc := TargetDescriptor{Filename: "app.bin", Length: 4, Hashes: data.Hashes{"sha256": []byte{0xab, 0xcd}}}
	res, err := s.PutTarget(context.Background(), desc, bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	outcome, err := s.Install(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, outcome.Code)

	env, err := s.GetManifest(context.Background())
	require.NoError(t, err)

	pub, err := s.GetPublicKey(context.Background())
	require.NoError(t, err)
	body, err := env.CanonicalSignedBytes()
	require.NoError(t, err)
	require.Len(t, env.Signatures, 1)
	assert.True(t, ucrypto.Verify(pub, env.Signatures[0].Sig, body))

	var manifest data.Manifest
	require.NoError(t, json.Unmarshal(env.Signed, &manifest))
	ecuManifest, ok := manifest.Ecus["ecu-a"]
	require.True(t, ok)
	assert.Equal(t, "abcd", ecuManifest.InstalledHash)
	assert.Equal(t, "fixed-nonce", ecuManifest.Nonce)
}
