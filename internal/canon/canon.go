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

// Package canon produces the canonical JSON encoding that key-ids and
// signed-body digests are computed over: sorted object keys, no
// insignificant whitespace. It wraps the same canonicalizer the TUF and
// in-toto ecosystems use so that key-ids computed here agree with any
// other Uptane implementation given the same key material.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
)

// Encode returns the canonical JSON encoding of v.
func Encode(v interface{}) ([]byte, error) {
	b, err := cjson.EncodeCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("canon: encode: %w", err)
	}
	return b, nil
}

// SHA256Hex returns the hex-encoded SHA-256 digest of the canonical JSON
// encoding of v. This is the key-id and signed-body digest primitive used
// throughout pkg/uptane.
func SHA256Hex(v interface{}) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
