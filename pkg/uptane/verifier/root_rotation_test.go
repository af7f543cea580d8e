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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

func rootRole(s signer, threshold int) (data.RootRole, map[string]ucrypto.PublicKey) {
	return data.RootRole{Threshold: threshold, KeyIDs: []string{s.id}}, map[string]ucrypto.PublicKey{s.id: s.kp.Public}
}

func buildRoot(version int64, rootSigner signer) *data.Root {
	rr, keys := rootRole(rootSigner, 1)
	return &data.Root{
		SignedCommon: data.SignedCommon{Type: data.RoleRoot, Version: version, Expires: farFuture()},
		Roles: map[data.RoleName]data.RootRole{
			data.RoleRoot:      rr,
			data.RoleTimestamp: rr,
			data.RoleSnapshot:  rr,
			data.RoleTargets:   rr,
		},
		Keys: keys,
	}
}

func TestRotateRoot_NoNewVersions(t *testing.T) {
	s := newSigner()
	root := buildRoot(1, s)
	fetcher := newMemFetcher()

	got, chain, err := rotateRoot(context.Background(), data.RepoImage, fetcher, root, farFuture().Add(-1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Empty(t, chain)
}

func TestRotateRoot_FollowsCrossSignedChain(t *testing.T) {
	s1 := newSigner()
	root1 := buildRoot(1, s1)

	s2 := newSigner()
	root2Body := buildRoot(2, s2)
	raw2, _ := signRootBothSides(root2Body, s1, s2)

	fetcher := newMemFetcher()
	fetcher.put(data.RepoDirector, data.RoleRoot, 2, raw2)

	got, chain, err := rotateRoot(context.Background(), data.RepoDirector, fetcher, root1, farFuture().Add(-1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, chain, 1)
	assert.Equal(t, int64(2), chain[0].version)
}

func TestRotateRoot_RejectsMissingOldSignature(t *testing.T) {
	s1 := newSigner()
	root1 := buildRoot(1, s1)

	s2 := newSigner()
	root2Body := buildRoot(2, s2)
	// sign only with the new key, omitting the old root's endorsement.
	env := sign(s2, root2Body)

	fetcher := newMemFetcher()
	fetcher.put(data.RepoDirector, data.RoleRoot, 2, envelopeBytes(env))

	_, _, err := rotateRoot(context.Background(), data.RepoDirector, fetcher, root1, farFuture().Add(-1))
	require.Error(t, err)
	assert.Equal(t, ThresholdNotMet, Kind(err))
}

func TestRotateRoot_ExpiredFinalRoot(t *testing.T) {
	s := newSigner()
	root := buildRoot(1, s)
	root.Expires = farFuture()
	fetcher := newMemFetcher()

	_, _, err := rotateRoot(context.Background(), data.RepoImage, fetcher, root, farFuture().Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, Expired, Kind(err))
}

// signRootBothSides signs body once with each signer's key and returns
// the combined envelope's raw bytes plus the envelope itself.
func signRootBothSides(body *data.Root, oldSigner, newSigner signer) ([]byte, data.Envelope) {
	env := sign(oldSigner, body)
	// append the new signer's signature over the same canonical body.
	env2 := sign(newSigner, body)
	env.Signatures = append(env.Signatures, env2.Signatures...)
	return envelopeBytes(env), env
}
