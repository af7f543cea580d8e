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
	"sync"

	"go.uber.org/zap"

	"github.com/ota-uptane/primary/pkg/events"
	"github.com/ota-uptane/primary/pkg/pkgmanager"
	"github.com/ota-uptane/primary/pkg/secondary"
	"github.com/ota-uptane/primary/pkg/store"
	transport "github.com/ota-uptane/primary/pkg/transport/http"
	"github.com/ota-uptane/primary/pkg/uptane/data"
	"github.com/ota-uptane/primary/pkg/uptane/resolver"
	"github.com/ota-uptane/primary/pkg/uptane/verifier"
)

// Config wires every collaborator one Orchestrator drives. Fields with
// no reasonable default are required; the rest fall back as documented.
type Config struct {
	// RoleFetcher retrieves role documents for both repositories; the
	// orchestrator also hands it to the target resolver to walk Image
	// delegations. pkg/fetcher.NewCachingRoleFetcher wrapping
	// pkg/fetcher.RoleFetcher is the expected production value.
	RoleFetcher verifier.RoleFetcher
	// TransportClient fetches target bytes and submits the manifest.
	TransportClient transport.Client

	MetadataStore store.MetadataStore
	DeviceState   store.DeviceState
	BlobStore     store.BlobStore
	Clock         verifier.Clock

	KnownEcus         []resolver.KnownEcu
	PrimarySerial     data.EcuSerial
	PrimaryPkgManager pkgmanager.PackageManager
	Secondaries       map[data.EcuSerial]secondary.Secondary

	Bus         *events.Bus
	ManifestURL string
	// ImageRepoURL is the base URL target content is fetched from when
	// a resolved target carries no URI of its own (the common case:
	// signed metadata names a path, not a URL). Target bytes are
	// expected under "<ImageRepoURL>/targets/<path>".
	ImageRepoURL string

	// DownloadConcurrency bounds how many targets FetchTarget runs at
	// once (spec.md §5's K, default 1).
	DownloadConcurrency int
	// ProgressIntervalBytes and MaxFetchAttempts pass through to
	// fetcher.TargetOptions for every target download.
	ProgressIntervalBytes int64
	MaxFetchAttempts      int

	Logger *zap.SugaredLogger
}

func (c *Config) setDefaults() {
	if c.DownloadConcurrency <= 0 {
		c.DownloadConcurrency = 1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.Bus == nil {
		c.Bus = events.NewBus()
	}
}

// Orchestrator drives one check→download→install→report cycle at a
// time. A single instance is not safe for concurrent Run calls;
// spec.md §5 models the cycle itself as single-threaded cooperative.
type Orchestrator struct {
	cfg Config

	mu    sync.Mutex
	state State
}

// New returns an Orchestrator wired per cfg, starting in Idle.
func New(cfg Config) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{cfg: cfg, state: Idle}
}

// State reports the orchestrator's current position in the cycle.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) publish(ev events.Event) {
	o.cfg.Bus.Publish(ev)
}

// Run executes one full cycle. It always returns to Idle; CycleResult
// records which branch of spec.md §4.6's diagram produced that return,
// and never returns a non-nil error on its own — failures are reported
// through CycleResult.Result/Err, per spec.md §7 ("verification and
// fetch errors are recovered by the orchestrator").
func (o *Orchestrator) Run(ctx context.Context) *CycleResult {
	o.setState(CheckingMetadata)

	plan, err := o.checkMetadata(ctx)
	if err != nil {
		result := CheckFailed
		if ctx.Err() != nil {
			result = Interrupted
		}
		o.publish(events.Event{Kind: events.UpdateCheckComplete, Result: events.Result{Success: false, Reason: err.Error()}})
		o.setState(Idle)
		return &CycleResult{State: Idle, Result: result, Err: err}
	}

	if len(plan) == 0 {
		o.publish(events.Event{Kind: events.UpdateCheckComplete, Result: events.Result{Success: true, Reason: string(NoUpdate)}})
		o.setState(Idle)
		return &CycleResult{State: Idle, Result: NoUpdate}
	}
	o.publish(events.Event{Kind: events.UpdateCheckComplete, Result: events.Result{Success: true, Reason: "UpdatesAvailable"}})

	o.setState(Downloading)
	downloadOk := o.downloadAll(ctx, plan)
	o.publish(events.Event{Kind: events.AllDownloadsComplete, Result: events.Result{Success: downloadOk}})

	var (
		installOk = true
		outcomes  map[data.EcuSerial]installResult
	)
	if downloadOk {
		o.setState(Installing)
		installOk, outcomes = o.installAll(ctx, plan)
		o.publish(events.Event{Kind: events.AllInstallsComplete, Result: events.Result{Success: installOk}})
	}

	o.setState(Reporting)
	manifestOk, mErr := o.report(ctx, outcomes)
	o.publish(events.Event{Kind: events.PutManifestComplete, Ok: manifestOk})

	o.setState(Idle)

	result := Complete
	switch {
	case !downloadOk:
		result = DownloadFailed
	case !installOk:
		result = InstallFailed
	}
	if !manifestOk && result == Complete {
		result = InstallFailed
	}

	return &CycleResult{State: Idle, Result: result, Err: mErr}
}

// checkMetadata runs the repository verifier for both repositories,
// then resolves the update plan, per spec.md §4.6's CheckingMetadata
// state. A nil plan with a nil error means "no update": either both
// repos reported Unchanged, or the resolver skipped every target as
// already installed.
func (o *Orchestrator) checkMetadata(ctx context.Context) (resolver.Plan, error) {
	imgState, err := verifier.UpdateRepository(ctx, data.RepoImage, o.cfg.RoleFetcher, o.cfg.MetadataStore, o.cfg.Clock)
	if err != nil {
		return nil, fmt.Errorf("checking image repository: %w", err)
	}
	dirState, err := verifier.UpdateRepository(ctx, data.RepoDirector, o.cfg.RoleFetcher, o.cfg.MetadataStore, o.cfg.Clock)
	if err != nil {
		return nil, fmt.Errorf("checking director repository: %w", err)
	}

	if imgState.Unchanged && dirState.Unchanged {
		return nil, nil
	}

	imageTop := imgState.Targets
	if imageTop == nil {
		imageTop, err = verifier.LoadPersistedTargets(data.RepoImage, o.cfg.MetadataStore)
		if err != nil {
			return nil, fmt.Errorf("loading persisted image targets: %w", err)
		}
	}
	directorTop := dirState.Targets
	if directorTop == nil {
		directorTop, err = verifier.LoadPersistedTargets(data.RepoDirector, o.cfg.MetadataStore)
		if err != nil {
			return nil, fmt.Errorf("loading persisted director targets: %w", err)
		}
	}

	installed, err := o.cfg.DeviceState.InstalledHashes()
	if err != nil {
		return nil, fmt.Errorf("reading installed-hash map: %w", err)
	}

	plan, err := resolver.Resolve(ctx, o.cfg.RoleFetcher, imageTop, directorTop.Targets, o.cfg.KnownEcus, installed, o.cfg.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("resolving update plan: %w", err)
	}
	return plan, nil
}
