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
	"crypto/sha256"
	"crypto/sha512"
	"hash"
)

// DigestAlgorithm names the hash algorithms this package supports, matching
// the hash-set keys used in the Uptane metadata model (pkg/uptane/data).
type DigestAlgorithm string

const (
	SHA256 DigestAlgorithm = "sha256"
	SHA512 DigestAlgorithm = "sha512"
)

// Sum256 returns the SHA-256 digest of b.
func Sum256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// Sum512 returns the SHA-512 digest of b.
func Sum512(b []byte) [64]byte {
	return sha512.Sum512(b)
}

// NewHash returns a fresh hash.Hash for the given algorithm, for streaming
// digest computation (used by the fetcher while downloading a target).
func NewHash(algo DigestAlgorithm) (hash.Hash, error) {
	switch algo {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, newError(UnsupportedAlgorithm, "unknown digest algorithm %q", algo)
	}
}
