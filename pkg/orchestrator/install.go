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
	"fmt"
	"os"

	"github.com/ota-uptane/primary/pkg/events"
	"github.com/ota-uptane/primary/pkg/pkgmanager"
	"github.com/ota-uptane/primary/pkg/secondary"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// installResult is one ECU's outcome from this cycle's install
// dispatch, carried forward into the manifest (spec.md §4.6).
type installResult struct {
	code    string
	message string
	ok      bool
}

// metadataBundle reads the just-persisted top-level Targets documents
// back out of the metadata store, raw, for pushing to secondaries
// (spec.md §4.5: secondaries receive pre-validated bytes and re-verify
// them independently).
func (o *Orchestrator) metadataBundle() (secondary.MetadataBundle, error) {
	dirRaw, _, _, err := o.cfg.MetadataStore.Get(data.RepoDirector, data.RoleTargets)
	if err != nil {
		return secondary.MetadataBundle{}, err
	}
	imgRaw, _, _, err := o.cfg.MetadataStore.Get(data.RepoImage, data.RoleTargets)
	if err != nil {
		return secondary.MetadataBundle{}, err
	}
	return secondary.MetadataBundle{DirectorTargets: dirRaw, ImageTargets: imgRaw}, nil
}

// installAll dispatches every (EcuSerial, Target) in plan order
// sequentially (spec.md §4.6: "Installs run sequentially per ECU;
// parallelism across ECUs is permitted but not required"). A
// cancellation observed between installs stops dispatching further
// ones; an install already in flight always runs to completion
// (spec.md §5).
func (o *Orchestrator) installAll(ctx context.Context, plan []data.ResolvedTarget) (bool, map[data.EcuSerial]installResult) {
	outcomes := make(map[data.EcuSerial]installResult, len(plan))
	allOk := true

	bundle, err := o.metadataBundle()
	if err != nil {
		o.cfg.Logger.Warnw("reading metadata bundle for secondary push", "error", err)
	}

	for _, target := range plan {
		if ctx.Err() != nil {
			break
		}

		o.publish(events.Event{Kind: events.InstallStarted, Serial: target.EcuSerial})

		var res installResult
		if target.EcuSerial == o.cfg.PrimarySerial {
			res = o.installPrimary(ctx, target)
		} else {
			res = o.installSecondary(ctx, target, bundle)
		}
		outcomes[target.EcuSerial] = res

		o.publish(events.Event{Kind: events.InstallTargetComplete, Serial: target.EcuSerial, Ok: res.ok})
		if !res.ok {
			allOk = false
			continue
		}

		// Record the new installed hash so the next cycle's resolver
		// sees this ECU as up to date (spec.md §4.3 rule 3, §8 property
		// 5). Without this, an unchanged server would re-plan the same
		// install on every subsequent tick.
		if sha, ok := target.Hashes["sha256"]; ok {
			if err := o.cfg.DeviceState.SetInstalledHash(target.EcuSerial, fmt.Sprintf("%x", sha)); err != nil {
				o.cfg.Logger.Warnw("persisting installed hash", "ecu", target.EcuSerial, "error", err)
			}
		}
	}
	return allOk, outcomes
}

func (o *Orchestrator) installPrimary(ctx context.Context, target data.ResolvedTarget) installResult {
	path, err := o.cfg.BlobStore.Path(target.Filename)
	if err != nil {
		return installResult{code: string(pkgmanager.InstallFailed), message: err.Error()}
	}
	out, err := o.cfg.PrimaryPkgManager.Install(ctx, target, path)
	if err != nil {
		return installResult{code: string(pkgmanager.InstallFailed), message: err.Error()}
	}
	return installResult{code: string(out.Code), message: out.Message, ok: out.Code == pkgmanager.OK}
}

func (o *Orchestrator) installSecondary(ctx context.Context, target data.ResolvedTarget, bundle secondary.MetadataBundle) installResult {
	sec, known := o.cfg.Secondaries[target.EcuSerial]
	if !known {
		return installResult{code: string(secondary.OutcomeInstallFailed), message: "no secondary registered for ecu serial"}
	}

	if pr, err := sec.PutMetadata(ctx, bundle); err != nil || !pr.Accepted {
		return installResult{code: string(secondary.OutcomeVerificationFailed), message: rejectReason(pr, err)}
	}

	path, err := o.cfg.BlobStore.Path(target.Filename)
	if err != nil {
		return installResult{code: string(secondary.OutcomeDownloadFailed), message: err.Error()}
	}
	f, err := os.Open(path)
	if err != nil {
		return installResult{code: string(secondary.OutcomeDownloadFailed), message: err.Error()}
	}
	defer f.Close()

	desc := secondary.TargetDescriptor{Filename: target.Filename, Length: target.Length, Hashes: target.Hashes}
	if pr, err := sec.PutTarget(ctx, desc, f); err != nil || !pr.Accepted {
		return installResult{code: string(secondary.OutcomeDownloadFailed), message: rejectReason(pr, err)}
	}

	out, err := sec.Install(ctx, desc)
	if err != nil {
		return installResult{code: string(secondary.OutcomeInstallFailed), message: err.Error()}
	}
	return installResult{code: string(out.Code), message: out.Message, ok: out.Code == secondary.OutcomeOK}
}

func rejectReason(pr secondary.PushResult, err error) string {
	if err != nil {
		return err.Error()
	}
	return pr.Reason
}
