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
	"io"
	"os"
	"sync"

	"github.com/ota-uptane/primary/pkg/events"
	"github.com/ota-uptane/primary/pkg/fetcher"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// downloadAll fetches every distinct target filename in plan, up to
// DownloadConcurrency at once, per spec.md §5's K. It reports whether
// every download succeeded; per-target events are published as they
// complete, totally ordered with respect to that target's own progress
// reports (spec.md §5 ordering guarantee).
func (o *Orchestrator) downloadAll(ctx context.Context, plan []data.ResolvedTarget) bool {
	byFilename := make(map[string]data.ResolvedTarget, len(plan))
	for _, t := range plan {
		byFilename[t.Filename] = t
	}

	sem := make(chan struct{}, o.cfg.DownloadConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allOk := true

	for _, target := range byFilename {
		target := target
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok := o.downloadOne(ctx, target)
			if !ok {
				mu.Lock()
				allOk = false
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return allOk
}

// downloadOne fetches a single target's bytes into the blob store,
// resuming from whatever was already on disk, per spec.md §4.4.
func (o *Orchestrator) downloadOne(ctx context.Context, target data.ResolvedTarget) bool {
	if len(target.URIs) == 0 {
		// The resolver (pkg/uptane/resolver) produces ResolvedTarget
		// from signed metadata alone, which never carries a URI (TUF/
		// Uptane targets are addressed by path, not by URL); the
		// candidate location is the Image repo's conventional
		// "targets/<path>" layout under the configured base URL.
		target.URIs = []string{o.cfg.ImageRepoURL + "/targets/" + target.Filename}
	}

	resumeFrom, err := o.cfg.BlobStore.Size(target.Filename)
	if err != nil {
		o.cfg.Logger.Warnw("statting blob for resume offset", "target", target.Filename, "error", err)
		o.publish(events.Event{Kind: events.DownloadTargetComplete, Target: target.Filename, Ok: false})
		return false
	}

	path, err := o.cfg.BlobStore.Path(target.Filename)
	if err != nil {
		o.publish(events.Event{Kind: events.DownloadTargetComplete, Target: target.Filename, Ok: false})
		return false
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		o.cfg.Logger.Warnw("opening blob for write", "target", target.Filename, "error", err)
		o.publish(events.Event{Kind: events.DownloadTargetComplete, Target: target.Filename, Ok: false})
		return false
	}
	if _, err := f.Seek(resumeFrom, 0); err != nil {
		f.Close()
		o.publish(events.Event{Kind: events.DownloadTargetComplete, Target: target.Filename, Ok: false})
		return false
	}

	progress := func(bytesSoFar, total int64) bool {
		pct := 0
		if total > 0 {
			pct = int(bytesSoFar * 100 / total)
		}
		o.publish(events.Event{Kind: events.DownloadProgressReport, Target: target.Filename, Pct: pct})
		return ctx.Err() != nil
	}

	prefix := func() (io.ReadCloser, error) {
		return os.Open(path)
	}
	outcome, err := fetcher.FetchTarget(ctx, o.cfg.TransportClient, target, f, progress, resumeFrom, prefix, fetcher.TargetOptions{
		ProgressIntervalBytes: o.cfg.ProgressIntervalBytes,
		MaxAttempts:           o.cfg.MaxFetchAttempts,
	})
	closeErr := f.Close()

	if err != nil || closeErr != nil || outcome != fetcher.Completed {
		// Only a confirmed size/hash mismatch invalidates the partial
		// file; a transient transport failure or cancellation leaves it
		// in place so the next attempt can resume from its size
		// (spec.md §4.4).
		if fetcher.KindOf(err) == fetcher.SizeExceeded {
			if ierr := o.cfg.BlobStore.Invalidate(target.Filename); ierr != nil {
				o.cfg.Logger.Warnw("invalidating blob after failed download", "target", target.Filename, "error", ierr)
			}
		}
		o.cfg.Logger.Infow("target download did not complete", "target", target.Filename, "outcome", outcome, "error", err)
		o.publish(events.Event{Kind: events.DownloadTargetComplete, Target: target.Filename, Ok: false})
		return false
	}

	o.publish(events.Event{Kind: events.DownloadTargetComplete, Target: target.Filename, Ok: true})
	return true
}
