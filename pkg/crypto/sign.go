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
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"

	"github.com/sigstore/sigstore/pkg/signature"
	"github.com/sigstore/sigstore/pkg/signature/options"
)

// rsaPSSOptions is the single RSA-PSS shape spec.md §4.1 allows: SHA-256,
// MGF1-SHA-256, salt length equal to the hash length.
var rsaPSSOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthEqualsHash,
	Hash:       crypto.SHA256,
}

// Sign produces a signature over msg with priv, whose algorithm is
// inferred from its concrete type. It fails with Error (never panics) on
// unusable key material, per spec.md §4.1.
func Sign(priv crypto.Signer, msg []byte) ([]byte, error) {
	switch key := priv.(type) {
	case *rsa.PrivateKey:
		signer, err := signature.LoadRSAPSSSigner(key, crypto.SHA256, rsaPSSOptions)
		if err != nil {
			return nil, newError(BadKey, "loading rsa-pss signer: %v", err)
		}
		sig, err := signer.SignMessage(bytes.NewReader(msg))
		if err != nil {
			return nil, newError(BadKey, "rsa-pss signing: %v", err)
		}
		return sig, nil
	case ed25519.PrivateKey:
		signer, err := signature.LoadED25519Signer(key)
		if err != nil {
			return nil, newError(BadKey, "loading ed25519 signer: %v", err)
		}
		sig, err := signer.SignMessage(bytes.NewReader(msg))
		if err != nil {
			return nil, newError(BadKey, "ed25519 signing: %v", err)
		}
		return sig, nil
	default:
		return nil, newError(UnsupportedAlgorithm, "unsupported private key type %T", priv)
	}
}

// Verify reports whether sig is a valid signature over msg under pub.
// It never raises on malformed input: any parse or algorithm error is
// treated as a failed verification, per spec.md §4.1.
func Verify(pub PublicKey, sig, msg []byte) bool {
	cryptoPub, err := pub.CryptoPublicKey()
	if err != nil {
		return false
	}
	var verifier signature.Verifier
	var verifyOpts []signature.VerifyOption
	switch pub.Type {
	case KeyTypeRSA:
		rsaPub, ok := cryptoPub.(*rsa.PublicKey)
		if !ok {
			return false
		}
		verifier, err = signature.LoadRSAPSSVerifier(rsaPub, crypto.SHA256, rsaPSSOptions)
		verifyOpts = append(verifyOpts, options.WithCryptoSignerOpts(crypto.SHA256))
	case KeyTypeEd25519:
		edPub, ok := cryptoPub.(ed25519.PublicKey)
		if !ok {
			return false
		}
		verifier, err = signature.LoadED25519Verifier(edPub)
	default:
		return false
	}
	if err != nil || verifier == nil {
		return false
	}
	if err := verifier.VerifySignature(bytes.NewReader(sig), bytes.NewReader(msg), verifyOpts...); err != nil {
		return false
	}
	return true
}

// HexDigestSHA256 returns the hex-encoded SHA-256 digest of b, used by
// the fetcher and target resolver for hash comparisons.
func HexDigestSHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
