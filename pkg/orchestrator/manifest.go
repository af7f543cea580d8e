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

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/ota-uptane/primary/internal/canon"
	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// report builds the aggregate, primary-signed manifest for this cycle
// and submits it (spec.md §4.6's Reporting state). outcomes holds only
// the ECUs touched by this cycle's install plan; every other known ECU
// still gets an entry, carrying forward its last-known installed hash
// with no fresh outcome code.
//
// Per-ECU problems collecting a secondary's own manifest (an
// unreachable secondary, a bad signature) don't abort the submission:
// they're folded into the returned error via go-multierror so the
// caller can log every one, while the rest of the manifest still goes
// out.
func (o *Orchestrator) report(ctx context.Context, outcomes map[data.EcuSerial]installResult) (bool, error) {
	var errs *multierror.Error

	ecus := make(map[data.EcuSerial]data.EcuManifest, len(o.cfg.KnownEcus))
	for _, ecu := range o.cfg.KnownEcus {
		em, err := o.ecuManifest(ctx, ecu.Serial, outcomes)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("ecu %s: %w", ecu.Serial, err))
			continue
		}
		ecus[ecu.Serial] = em
	}

	manifest := data.Manifest{
		SignedCommon:  data.SignedCommon{Type: "manifest", Version: 1, Expires: o.cfg.Clock.Now().AddDate(0, 0, 1)},
		PrimarySerial: o.cfg.PrimarySerial,
		Ecus:          ecus,
	}

	env, err := o.signManifest(manifest)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("signing manifest: %w", err))
		return false, errs.ErrorOrNil()
	}

	body, err := json.Marshal(env)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("encoding manifest envelope: %w", err))
		return false, errs.ErrorOrNil()
	}

	resp, err := o.cfg.TransportClient.Post(ctx, o.cfg.ManifestURL, "application/json", body)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("submitting manifest: %w", err))
		return false, errs.ErrorOrNil()
	}
	if !resp.Ok() {
		errs = multierror.Append(errs, fmt.Errorf("manifest submission rejected: status %d", resp.Status))
		return false, errs.ErrorOrNil()
	}

	return true, errs.ErrorOrNil()
}

// ecuManifest resolves one ECU's entry: the primary reports its own
// package manager's current hash directly, a secondary is asked for
// its own signed manifest and verified before its entry is trusted.
func (o *Orchestrator) ecuManifest(ctx context.Context, serial data.EcuSerial, outcomes map[data.EcuSerial]installResult) (data.EcuManifest, error) {
	res, attempted := outcomes[serial]

	if serial == o.cfg.PrimarySerial {
		hash, err := o.cfg.PrimaryPkgManager.GetCurrent(ctx)
		if err != nil {
			return data.EcuManifest{}, err
		}
		em := data.EcuManifest{Serial: serial, InstalledHash: hash, Nonce: uuid.NewString()}
		if attempted {
			em.OutcomeCode, em.OutcomeMsg = res.code, res.message
		}
		return em, nil
	}

	sec, known := o.cfg.Secondaries[serial]
	if !known {
		return data.EcuManifest{}, fmt.Errorf("no secondary registered")
	}
	env, err := sec.GetManifest(ctx)
	if err != nil {
		return data.EcuManifest{}, fmt.Errorf("fetching manifest: %w", err)
	}
	pub, err := sec.GetPublicKey(ctx)
	if err != nil {
		return data.EcuManifest{}, fmt.Errorf("fetching public key: %w", err)
	}
	canonical, err := env.CanonicalSignedBytes()
	if err != nil {
		return data.EcuManifest{}, fmt.Errorf("canonicalizing manifest: %w", err)
	}
	if !verifiedBy(env, pub, canonical) {
		return data.EcuManifest{}, fmt.Errorf("manifest signature invalid")
	}

	var reported data.Manifest
	if err := json.Unmarshal(env.Signed, &reported); err != nil {
		return data.EcuManifest{}, fmt.Errorf("decoding manifest: %w", err)
	}
	em, ok := reported.Ecus[serial]
	if !ok {
		return data.EcuManifest{}, fmt.Errorf("manifest carries no entry for its own serial")
	}
	if attempted {
		em.OutcomeCode, em.OutcomeMsg = res.code, res.message
	}
	return em, nil
}

func verifiedBy(env data.Envelope, pub ucrypto.PublicKey, canonical []byte) bool {
	for _, sig := range env.Signatures {
		if ucrypto.Verify(pub, sig.Sig, canonical) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) signManifest(manifest data.Manifest) (data.Envelope, error) {
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

	kp, err := o.cfg.DeviceState.PrimaryKeyPair()
	if err != nil {
		return data.Envelope{}, err
	}
	sig, err := ucrypto.Sign(kp.Private, canonBytes)
	if err != nil {
		return data.Envelope{}, err
	}
	kid, err := ucrypto.KeyID(kp.Public)
	if err != nil {
		return data.Envelope{}, err
	}
	return data.Envelope{
		Signed:     raw,
		Signatures: []data.Signature{{KeyID: kid, Method: "ed25519", Sig: sig}},
	}, nil
}
