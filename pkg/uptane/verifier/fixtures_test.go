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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ota-uptane/primary/internal/canon"
	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

type signer struct {
	kp ucrypto.KeyPair
	id string
}

func newSigner() signer {
	kp, err := ucrypto.GenerateKeypair(ucrypto.KeyTypeEd25519)
	if err != nil {
		panic(err)
	}
	kid, err := ucrypto.KeyID(kp.Public)
	if err != nil {
		panic(err)
	}
	return signer{kp: kp, id: kid}
}

// sign marshals body, signs its canonical encoding with s, and returns
// the resulting envelope.
func sign(s signer, body interface{}) data.Envelope {
	raw, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		panic(err)
	}
	canonBytes, err := canon.Encode(generic)
	if err != nil {
		panic(err)
	}
	sig, err := ucrypto.Sign(s.kp.Private, canonBytes)
	if err != nil {
		panic(err)
	}
	return data.Envelope{
		Signed: raw,
		Signatures: []data.Signature{
			{KeyID: s.id, Method: "ed25519", Sig: sig},
		},
	}
}

func envelopeBytes(env data.Envelope) []byte {
	b, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return b
}

// memFetcher is an in-memory RoleFetcher keyed by (repo, role, version);
// version 0 is used as the "latest" slot.
type memFetcher struct {
	mu    sync.Mutex
	roles map[string][]byte
}

func newMemFetcher() *memFetcher {
	return &memFetcher{roles: make(map[string][]byte)}
}

func fetcherKey(repo data.RepoKind, role data.RoleName, version int64) string {
	return fmt.Sprintf("%s/%s@%d", repo, role, version)
}

func (f *memFetcher) put(repo data.RepoKind, role data.RoleName, version int64, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[fetcherKey(repo, role, version)] = raw
	f.roles[fetcherKey(repo, role, 0)] = raw
}

func (f *memFetcher) FetchRole(_ context.Context, repo data.RepoKind, role data.RoleName, version *int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := int64(0)
	if version != nil {
		v = *version
	}
	raw, ok := f.roles[fetcherKey(repo, role, v)]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

// memStore is an in-memory MetadataStore.
type memStore struct {
	mu   sync.Mutex
	data map[string]struct {
		raw     []byte
		version int64
	}
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]struct {
		raw     []byte
		version int64
	})}
}

func (s *memStore) Put(repo data.RepoKind, role data.RoleName, version int64, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[fmt.Sprintf("%s/%s", repo, role)] = struct {
		raw     []byte
		version int64
	}{raw, version}
	return nil
}

func (s *memStore) Get(repo data.RepoKind, role data.RoleName) ([]byte, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[fmt.Sprintf("%s/%s", repo, role)]
	if !ok {
		return nil, 0, false, nil
	}
	return v.raw, v.version, true, nil
}

func farFuture() time.Time {
	return time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC)
}
