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

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	for _, keyType := range []KeyType{KeyTypeRSA, KeyTypeEd25519} {
		t.Run(string(keyType), func(t *testing.T) {
			kp, err := GenerateKeypair(keyType)
			require.NoError(t, err)

			msg := []byte("root.json version 3 body")
			sig, err := Sign(kp.Private, msg)
			require.NoError(t, err)

			assert.True(t, Verify(kp.Public, sig, msg))
			assert.False(t, Verify(kp.Public, sig, []byte("tampered body")))
		})
	}
}

func TestVerifyNeverPanicsOnMalformedInput(t *testing.T) {
	bad := PublicKey{Type: KeyTypeRSA, Value: KeyVal{Public: "not a pem"}}
	assert.False(t, Verify(bad, []byte("sig"), []byte("msg")))

	bad2 := PublicKey{Type: "unknown", Value: KeyVal{Public: "x"}}
	assert.False(t, Verify(bad2, nil, nil))
}

func TestKeyIDStable(t *testing.T) {
	kp, err := GenerateKeypair(KeyTypeEd25519)
	require.NoError(t, err)

	id1, err := KeyID(kp.Public)
	require.NoError(t, err)
	id2, err := KeyID(kp.Public)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestKeyEqualConsidersRSAModulusLength(t *testing.T) {
	kp1, err := GenerateKeypair(KeyTypeRSA)
	require.NoError(t, err)
	kp2, err := GenerateKeypair(KeyTypeRSA)
	require.NoError(t, err)

	assert.True(t, kp1.Public.Equal(kp1.Public))
	assert.False(t, kp1.Public.Equal(kp2.Public))
}
