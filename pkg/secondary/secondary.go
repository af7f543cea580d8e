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

// Package secondary defines the abstract channel to one secondary ECU
// (spec.md §4.5) and an in-memory implementation used by tests and by
// deployments with no real secondary transport.
package secondary

import (
	"context"
	"io"

	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// MetadataBundle is the pre-validated set of role documents the
// orchestrator pushes to a secondary: it has already passed this
// device's own verifier, but the secondary is still expected to
// re-verify it independently (spec.md §4.5 "not trusted to be stored
// correctly").
type MetadataBundle struct {
	DirectorTargets []byte
	ImageTargets    []byte
}

// TargetDescriptor identifies one resolved target being pushed or
// installed on a secondary.
type TargetDescriptor struct {
	Filename string
	Length   int64
	Hashes   data.Hashes
}

// PushResult is the secondary's response to put_metadata/put_target.
type PushResult struct {
	Accepted bool
	Reason   string
}

// InstallOutcomeCode mirrors the package-manager collaborator's outcome
// codes (spec.md §6), since a secondary ultimately runs its own package
// manager and reports the same vocabulary back.
type InstallOutcomeCode string

const (
	OutcomeOK                InstallOutcomeCode = "OK"
	OutcomeInstallFailed     InstallOutcomeCode = "InstallFailed"
	OutcomeDownloadFailed    InstallOutcomeCode = "DownloadFailed"
	OutcomeAlreadyProcessed  InstallOutcomeCode = "AlreadyProcessed"
	OutcomeVerificationFailed InstallOutcomeCode = "VerificationFailed"
)

// InstallOutcome is the result of install() on a secondary.
type InstallOutcome struct {
	Code    InstallOutcomeCode
	Message string
}

// Secondary is the abstract collaborator the orchestrator drives for
// one non-primary ECU. Implementations are treated as adversarial:
// every Manifest they return is verified against GetPublicKey before
// the orchestrator trusts its contents.
type Secondary interface {
	GetSerial(ctx context.Context) (data.EcuSerial, error)
	GetHardwareID(ctx context.Context) (data.HardwareIdentifier, error)
	GetPublicKey(ctx context.Context) (ucrypto.PublicKey, error)
	PutMetadata(ctx context.Context, bundle MetadataBundle) (PushResult, error)
	PutTarget(ctx context.Context, desc TargetDescriptor, blob io.Reader) (PushResult, error)
	Install(ctx context.Context, desc TargetDescriptor) (InstallOutcome, error)
	GetManifest(ctx context.Context) (data.Envelope, error)
}
