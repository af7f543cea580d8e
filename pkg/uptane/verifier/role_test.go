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

package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

func sampleSignedBody() data.SignedCommon {
	return data.SignedCommon{Type: data.RoleTimestamp, Version: 1, Expires: farFuture()}
}

func TestVerifySigned_ThresholdMet(t *testing.T) {
	a, b := newSigner(), newSigner()
	env := sign(a, sampleSignedBody())

	auth := Authority{Threshold: 1, Keys: map[string]ucrypto.PublicKey{a.id: a.kp.Public, b.id: b.kp.Public}}
	_, err := VerifySigned(data.RepoImage, data.RoleTimestamp, env, auth)
	assert.NoError(t, err)
}

func TestVerifySigned_ThresholdNotMet(t *testing.T) {
	a, b := newSigner(), newSigner()
	env := sign(a, sampleSignedBody())
	auth := Authority{Threshold: 2, Keys: map[string]ucrypto.PublicKey{a.id: a.kp.Public, b.id: b.kp.Public}}
	_, err := VerifySigned(data.RepoImage, data.RoleTimestamp, env, auth)
	require.Error(t, err)
	assert.Equal(t, ThresholdNotMet, Kind(err))
}

func TestVerifySigned_DuplicateKeyIDCountsOnce(t *testing.T) {
	a := newSigner()
	env := sign(a, sampleSignedBody())
	env.Signatures = append(env.Signatures, env.Signatures[0])

	auth := Authority{Threshold: 2, Keys: map[string]ucrypto.PublicKey{a.id: a.kp.Public}}
	_, err := VerifySigned(data.RepoImage, data.RoleTimestamp, env, auth)
	require.Error(t, err)
	assert.Equal(t, ThresholdNotMet, Kind(err))
}

func TestVerifySigned_UnknownKeyIDIsNonFatal(t *testing.T) {
	a, stranger := newSigner(), newSigner()
	env := sign(a, sampleSignedBody())
	env.Signatures = append(env.Signatures, data.Signature{KeyID: stranger.id, Method: "ed25519", Sig: []byte("garbage")})

	auth := Authority{Threshold: 1, Keys: map[string]ucrypto.PublicKey{a.id: a.kp.Public}}
	_, err := VerifySigned(data.RepoImage, data.RoleTimestamp, env, auth)
	assert.NoError(t, err)
}

func TestVerifySigned_TamperedBodyFailsVerification(t *testing.T) {
	a := newSigner()
	env := sign(a, sampleSignedBody())
	env.Signed = []byte(`{"_type":"timestamp","version":999,"expires":"2999-01-01T00:00:00Z"}`)

	auth := Authority{Threshold: 1, Keys: map[string]ucrypto.PublicKey{a.id: a.kp.Public}}
	_, err := VerifySigned(data.RepoImage, data.RoleTimestamp, env, auth)
	require.Error(t, err)
	assert.Equal(t, ThresholdNotMet, Kind(err))
}

func TestAuthorityFor_UnknownRole(t *testing.T) {
	root := &data.Root{Roles: map[data.RoleName]data.RootRole{}}
	_, ok := authorityFor(root, data.RoleTimestamp)
	assert.False(t, ok)
}
