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

// Package resolver cross-checks Director targets against Image-repo
// targets and produces the concrete, ordered update plan the
// orchestrator executes.
package resolver

import (
	"context"
	"sort"
	"time"

	"github.com/ota-uptane/primary/pkg/uptane/data"
	"github.com/ota-uptane/primary/pkg/uptane/verifier"
)

// ErrorKind is the PlanError taxonomy of spec.md §7.
type ErrorKind string

const (
	UnknownEcu         ErrorKind = "UnknownEcu"
	TargetMismatch     ErrorKind = "TargetMismatch"
	HardwareIdMismatch ErrorKind = "HardwareIdMismatch"
)

// Error is a PlanError.
type Error struct {
	Kind    ErrorKind
	Path    string
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Path + ": " + e.Message }

// KnownEcu is one ECU this device may install onto.
type KnownEcu struct {
	Serial     data.EcuSerial
	HardwareID data.HardwareIdentifier
}

// Plan is the ordered list of (EcuSerial, ResolvedTarget) entries the
// orchestrator will install, sorted by ECU serial then filename.
type Plan []data.ResolvedTarget

// Resolve cross-checks every entry in directorTargets against
// imageTop/imageFetcher (walking Image delegations as needed), filters
// to known ECUs, and skips already-installed targets, per spec.md §4.3.
func Resolve(
	ctx context.Context,
	imageFetcher verifier.RoleFetcher,
	imageTop *data.Targets,
	directorTargets map[string]data.TargetFileMeta,
	knownEcus []KnownEcu,
	installedHashes map[data.EcuSerial]string,
	now time.Time,
) (Plan, error) {
	ecuByID := make(map[data.EcuSerial]KnownEcu, len(knownEcus))
	for _, e := range knownEcus {
		ecuByID[e.Serial] = e
	}

	var plan Plan
	for path, dMeta := range directorTargets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if dMeta.Custom == nil || dMeta.Custom.EcuSerial == "" {
			return nil, &Error{Kind: UnknownEcu, Path: path, Message: "director entry names no ecu serial"}
		}
		serial := data.EcuSerial(dMeta.Custom.EcuSerial)
		ecu, known := ecuByID[serial]
		if !known {
			return nil, &Error{Kind: UnknownEcu, Path: path, Message: "ecu serial not in known ecu set"}
		}

		iMeta, err := verifier.ResolveTargetMeta(ctx, data.RepoImage, imageFetcher, imageTop, path, now)
		if err != nil {
			return nil, err
		}
		if iMeta == nil {
			return nil, &Error{Kind: TargetMismatch, Path: path, Message: "not present in image repository"}
		}
		if iMeta.Length != dMeta.Length || !hashesIntersectEqual(iMeta.Hashes, dMeta.Hashes) {
			return nil, &Error{Kind: TargetMismatch, Path: path, Message: "length/hash disagreement between director and image"}
		}
		if dMeta.Custom.HardwareID != "" && string(ecu.HardwareID) != dMeta.Custom.HardwareID {
			return nil, &Error{Kind: HardwareIdMismatch, Path: path, Message: "ecu hardware id does not match target's declared hardware id"}
		}

		if current, ok := installedHashes[serial]; ok && hashMatchesInstalled(dMeta.Hashes, current) {
			continue
		}

		plan = append(plan, data.ResolvedTarget{
			Filename:   path,
			Length:     dMeta.Length,
			Hashes:     dMeta.Hashes,
			EcuSerial:  serial,
			HardwareID: ecu.HardwareID,
		})
	}

	sort.Slice(plan, func(i, j int) bool {
		if plan[i].EcuSerial != plan[j].EcuSerial {
			return plan[i].EcuSerial < plan[j].EcuSerial
		}
		return plan[i].Filename < plan[j].Filename
	})
	return plan, nil
}

// hashesIntersectEqual reports whether a and b share at least one hash
// algorithm and, for every algorithm present in both, the digests are
// bitwise equal.
func hashesIntersectEqual(a, b data.Hashes) bool {
	shared := false
	for alg, av := range a {
		bv, ok := b[alg]
		if !ok {
			continue
		}
		shared = true
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return shared
}

func hashMatchesInstalled(hashes data.Hashes, installedHex string) bool {
	sha, ok := hashes["sha256"]
	if !ok {
		return false
	}
	return hexEqual(sha, installedHex)
}

func hexEqual(raw []byte, hexStr string) bool {
	if len(raw)*2 != len(hexStr) {
		return false
	}
	const digits = "0123456789abcdef"
	for i, b := range raw {
		if hexStr[i*2] != digits[b>>4] || hexStr[i*2+1] != digits[b&0x0f] {
			return false
		}
	}
	return true
}
