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
	"encoding/hex"
	"encoding/json"
	"io"
	"sync"

	"github.com/ota-uptane/primary/internal/canon"
	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// InMemory is a Secondary backed entirely by process memory, signing
// its manifest with a generated key pair. It is the test double used
// by this package's own tests and a usable stand-in for secondaries
// with no network presence of their own (e.g. co-located processes).
type InMemory struct {
	Serial     data.EcuSerial
	HardwareID data.HardwareIdentifier
	KeyPair    ucrypto.KeyPair

	mu            sync.Mutex
	installedHash string
	lastOutcome   InstallOutcome
	nonce         string
}

// NewInMemory creates an InMemory secondary with a freshly generated
// Ed25519 key pair.
func NewInMemory(serial data.EcuSerial, hwID data.HardwareIdentifier) (*InMemory, error) {
	kp, err := ucrypto.GenerateKeypair(ucrypto.KeyTypeEd25519)
	if err != nil {
		return nil, err
	}
	return &InMemory{Serial: serial, HardwareID: hwID, KeyPair: kp}, nil
}

func (s *InMemory) GetSerial(context.Context) (data.EcuSerial, error) { return s.Serial, nil }

func (s *InMemory) GetHardwareID(context.Context) (data.HardwareIdentifier, error) {
	return s.HardwareID, nil
}

func (s *InMemory) GetPublicKey(context.Context) (ucrypto.PublicKey, error) {
	return s.KeyPair.Public, nil
}

// PutMetadata re-verifies nothing itself in this test double; it only
// rejects a bundle carrying no Targets bytes at all and does not parse
// what it accepts. A production secondary is expected to
// run its own verifier instance here (spec.md §4.5).
func (s *InMemory) PutMetadata(_ context.Context, bundle MetadataBundle) (PushResult, error) {
	if len(bundle.DirectorTargets) == 0 && len(bundle.ImageTargets) == 0 {
		return PushResult{Accepted: false, Reason: "empty bundle"}, nil
	}
	return PushResult{Accepted: true}, nil
}

func (s *InMemory) PutTarget(_ context.Context, desc TargetDescriptor, blob io.Reader) (PushResult, error) {
	buf := new(bytes.Buffer)
	n, err := io.Copy(buf, blob)
	if err != nil {
		return PushResult{Accepted: false, Reason: err.Error()}, nil
	}
	if n != desc.Length {
		return PushResult{Accepted: false, Reason: "length mismatch"}, nil
	}
	return PushResult{Accepted: true}, nil
}

func (s *InMemory) Install(_ context.Context, desc TargetDescriptor) (InstallOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sha, ok := desc.Hashes["sha256"]
	if !ok {
		s.lastOutcome = InstallOutcome{Code: OutcomeVerificationFailed, Message: "no sha256 hash declared"}
		return s.lastOutcome, nil
	}
	s.installedHash = hex.EncodeToString(sha)
	s.lastOutcome = InstallOutcome{Code: OutcomeOK}
	return s.lastOutcome, nil
}

// SetNonce fixes the nonce GetManifest reports, for deterministic
// tests; production secondaries would generate a fresh one per call.
func (s *InMemory) SetNonce(n string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce = n
}

func (s *InMemory) GetManifest(context.Context) (data.Envelope, error) {
	s.mu.Lock()
	manifest := data.Manifest{
		SignedCommon:  data.SignedCommon{Type: "manifest", Version: 1},
		PrimarySerial: s.Serial,
		Ecus: map[data.EcuSerial]data.EcuManifest{
			s.Serial: {
				Serial:        s.Serial,
				InstalledHash: s.installedHash,
				OutcomeCode:   string(s.lastOutcome.Code),
				OutcomeMsg:    s.lastOutcome.Message,
				Nonce:         s.nonce,
			},
		},
	}
	s.mu.Unlock()

	raw, err := json.Marshal(manifest)
	if err != nil {
		return data.Envelope{}, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return data.Envelope{}, err
	}
	canonBytes, err := canon.Encode(generic)
	if err != nil {
		return data.Envelope{}, err
	}
	sig, err := ucrypto.Sign(s.KeyPair.Private, canonBytes)
	if err != nil {
		return data.Envelope{}, err
	}
	kid, err := ucrypto.KeyID(s.KeyPair.Public)
	if err != nil {
		return data.Envelope{}, err
	}
	return data.Envelope{
		Signed:     raw,
		Signatures: []data.Signature{{KeyID: kid, Method: "ed25519", Sig: sig}},
	}, nil
}

var _ Secondary = (*InMemory)(nil)
