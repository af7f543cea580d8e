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
	"bytes"
	"fmt"

	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
)

// hashRaw computes the digest of raw under the named algorithm ("sha256",
// "sha512"). go-tuf's data.HexBytes stores the decoded raw digest (its
// JSON (un)marshaling does the hex conversion), so this returns raw
// bytes directly comparable to a Hashes map value.
func hashRaw(alg string, raw []byte) ([]byte, error) {
	switch ucrypto.DigestAlgorithm(alg) {
	case ucrypto.SHA256:
		sum := ucrypto.Sum256(raw)
		return sum[:], nil
	case ucrypto.SHA512:
		sum := ucrypto.Sum512(raw)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", alg)
	}
}

func hashesEqual(computed []byte, declared []byte) bool {
	return bytes.Equal(computed, declared)
}
