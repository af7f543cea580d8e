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
	"encoding/json"

	"github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// Authority is the set of keys and the threshold a role body must
// satisfy to be accepted: either a top-level Root.Roles entry, or a
// delegation's declared keys/threshold.
type Authority struct {
	Threshold int
	Keys      map[string]crypto.PublicKey
}

// authorityFor extracts the Authority for roleName from a Root document.
func authorityFor(root *data.Root, roleName data.RoleName) (Authority, bool) {
	rr, ok := root.Roles[roleName]
	if !ok {
		return Authority{}, false
	}
	keys := make(map[string]crypto.PublicKey, len(rr.KeyIDs))
	for _, kid := range rr.KeyIDs {
		if pk, ok := root.Keys[kid]; ok {
			keys[kid] = pk
		}
	}
	return Authority{Threshold: rr.Threshold, Keys: keys}, true
}

// VerifySigned checks an envelope's signatures against auth: duplicate
// key-ids in the signature list count once (spec.md §4.2); a signature
// whose key-id is not in auth.Keys does not fail validation globally, it
// simply does not count toward the threshold. It returns the raw signed
// body on success.
func VerifySigned(repo data.RepoKind, role data.RoleName, env data.Envelope, auth Authority) (json.RawMessage, error) {
	body, err := env.CanonicalSignedBytes()
	if err != nil {
		return nil, newErr(MalformedDocument, repo, role, "canonicalizing signed body: %v", err)
	}

	seen := make(map[string]bool, len(env.Signatures))
	valid := 0
	for _, sig := range env.Signatures {
		if seen[sig.KeyID] {
			continue
		}
		seen[sig.KeyID] = true
		pub, ok := auth.Keys[sig.KeyID]
		if !ok {
			continue
		}
		if crypto.Verify(pub, sig.Sig, body) {
			valid++
		}
	}
	if valid < auth.Threshold {
		return nil, newErr(ThresholdNotMet, repo, role, "got %d valid signatures, need %d", valid, auth.Threshold)
	}
	return env.Signed, nil
}

// decodeEnvelope unmarshals a raw signed-role blob into an Envelope,
// returning MalformedDocument on failure.
func decodeEnvelope(repo data.RepoKind, role data.RoleName, raw []byte) (data.Envelope, error) {
	var env data.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return data.Envelope{}, newErr(MalformedDocument, repo, role, "unmarshaling envelope: %v", err)
	}
	return env, nil
}
