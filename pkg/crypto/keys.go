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
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	"github.com/ota-uptane/primary/internal/canon"
)

// KeyType is one of the two algorithms Uptane roles may be signed with.
type KeyType string

const (
	KeyTypeRSA     KeyType = "rsa"
	KeyTypeEd25519 KeyType = "ed25519"
)

// PublicKey is the tagged key pair of spec.md §3: {algorithm, encoded
// value}. Equality is by (algorithm, value) and, for RSA, modulus length;
// see Equal.
type PublicKey struct {
	Type  KeyType `json:"keytype"`
	Value KeyVal  `json:"keyval"`
}

// KeyVal wraps the encoded public key material under the "public" field,
// matching the canonical shape spec.md §4.1 mandates for key-id hashing:
// {keytype, keyval:{public:<encoded>}}.
type KeyVal struct {
	Public string `json:"public"`
}

// KeyID returns the hex SHA-256 of the canonical JSON encoding of pub.
// It is stable across whitespace, key ordering and encoding noise because
// it goes through internal/canon rather than encoding/json directly.
func KeyID(pub PublicKey) (string, error) {
	return canon.SHA256Hex(pub)
}

// Equal reports whether two public keys name the same signing identity.
// For RSA keys, modulus length is compared in addition to the raw
// encoded value, per spec.md §3.
func (p PublicKey) Equal(o PublicKey) bool {
	if p.Type != o.Type || p.Value.Public != o.Value.Public {
		return false
	}
	if p.Type == KeyTypeRSA {
		pk, err1 := p.parseRSA()
		ok, err2 := o.parseRSA()
		if err1 != nil || err2 != nil {
			return p.Value.Public == o.Value.Public
		}
		return pk.Size() == ok.Size()
	}
	return true
}

func (p PublicKey) parseRSA() (*rsa.PublicKey, error) {
	pub, err := p.CryptoPublicKey()
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, newError(BadKey, "not an RSA public key")
	}
	return rsaPub, nil
}

// CryptoPublicKey decodes Value into a standard library crypto.PublicKey,
// dispatching on Type. RSA keys are PEM/PKIX encoded; Ed25519 keys are
// raw 32-byte values, base64-encoded.
func (p PublicKey) CryptoPublicKey() (crypto.PublicKey, error) {
	switch p.Type {
	case KeyTypeRSA:
		block, _ := pem.Decode([]byte(p.Value.Public))
		if block == nil {
			return nil, newError(BadKey, "rsa public key is not PEM encoded")
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, newError(BadKey, "parsing rsa public key: %v", err)
		}
		if _, ok := pub.(*rsa.PublicKey); !ok {
			return nil, newError(BadKey, "PKIX key is not RSA")
		}
		return pub, nil
	case KeyTypeEd25519:
		raw, err := base64.StdEncoding.DecodeString(p.Value.Public)
		if err != nil {
			return nil, newError(BadKey, "ed25519 public key is not base64: %v", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, newError(BadKey, "ed25519 public key has wrong length %d", len(raw))
		}
		return ed25519.PublicKey(raw), nil
	default:
		return nil, newError(UnsupportedAlgorithm, "unknown key type %q", p.Type)
	}
}

// NewRSAPublicKey wraps an *rsa.PublicKey into the tagged PublicKey shape.
func NewRSAPublicKey(pub *rsa.PublicKey) (PublicKey, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return PublicKey{}, newError(BadKey, "marshaling rsa public key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return PublicKey{Type: KeyTypeRSA, Value: KeyVal{Public: string(pemBytes)}}, nil
}

// NewEd25519PublicKey wraps an ed25519.PublicKey into the tagged PublicKey
// shape.
func NewEd25519PublicKey(pub ed25519.PublicKey) PublicKey {
	return PublicKey{Type: KeyTypeEd25519, Value: KeyVal{Public: base64.StdEncoding.EncodeToString(pub)}}
}

// KeyPair is a generated (public, private) pair, returned by
// GenerateKeypair.
type KeyPair struct {
	Public  PublicKey
	Private crypto.Signer
}

// GenerateKeypair creates a fresh key pair of the requested type.
func GenerateKeypair(keyType KeyType) (KeyPair, error) {
	switch keyType {
	case KeyTypeRSA:
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return KeyPair{}, newError(BadKey, "generating rsa key: %v", err)
		}
		pub, err := NewRSAPublicKey(&priv.PublicKey)
		if err != nil {
			return KeyPair{}, err
		}
		return KeyPair{Public: pub, Private: priv}, nil
	case KeyTypeEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, newError(BadKey, "generating ed25519 key: %v", err)
		}
		return KeyPair{Public: NewEd25519PublicKey(pub), Private: priv}, nil
	default:
		return KeyPair{}, newError(UnsupportedAlgorithm, "unknown key type %q", keyType)
	}
}
