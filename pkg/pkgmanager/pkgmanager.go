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

// Package pkgmanager declares the package-manager collaborator
// contract of spec.md §6: install a downloaded target on the primary
// and report the content hash currently installed. Concrete backends
// (deb, fsimage) live in sibling packages.
package pkgmanager

import (
	"context"

	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// OutcomeCode mirrors spec.md §6's InstallOutcome vocabulary; it is the
// same set pkg/secondary.InstallOutcomeCode carries, since a secondary
// ultimately reports the result of its own package manager back through
// this vocabulary.
type OutcomeCode string

const (
	OK                  OutcomeCode = "OK"
	InstallFailed       OutcomeCode = "InstallFailed"
	DownloadFailed      OutcomeCode = "DownloadFailed"
	AlreadyProcessed    OutcomeCode = "AlreadyProcessed"
	VerificationFailed  OutcomeCode = "VerificationFailed"
)

// Outcome is the result of Install.
type Outcome struct {
	Code    OutcomeCode
	Message string
}

// PackageManager is the primary-local install collaborator of spec.md
// §6: `install(target) -> InstallOutcome{code, message}` and
// `get_current() -> hash`.
type PackageManager interface {
	Install(ctx context.Context, target data.ResolvedTarget, blobPath string) (Outcome, error)
	GetCurrent(ctx context.Context) (string, error)
}
