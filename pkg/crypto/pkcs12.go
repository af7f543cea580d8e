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
	"crypto"
	"crypto/x509"

	"golang.org/x/crypto/pkcs12"
)

// ParsePKCS12 decodes a PKCS#12 blob into the private key, leaf
// certificate and CA chain it carries, per spec.md §4.1
// parse_pkcs12(blob, password).
func ParsePKCS12(blob []byte, password string) (crypto.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {
	priv, cert, caChain, err := pkcs12.DecodeChain(blob, password)
	if err != nil {
		return nil, nil, nil, newError(BadKey, "parsing pkcs12: %v", err)
	}
	return priv, cert, caChain, nil
}
