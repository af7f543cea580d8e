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

package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// rotateRoot walks the root chain forward from persistedRoot, fetching
// N+1.root.json, N+2.root.json, ... until the fetcher reports
// ErrNotFound. Each candidate must be signed by a threshold of the
// *prior* root's root-role keys (proving the old root endorses the
// handover) and by a threshold of its *own* declared root-role keys
// (proving it is self-consistent). Intermediate roots in the chain are
// never expiry-checked; only the final, highest-version root is. A
// failure at any step returns the error without having mutated
// anything the caller can observe — the chain accumulates in a local
// slice and is only returned on success.
func rotateRoot(ctx context.Context, repo data.RepoKind, fetcher RoleFetcher, persistedRoot *data.Root, now time.Time) (*data.Root, []versionedRaw, error) {
	current := persistedRoot
	var chain []versionedRaw

	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		nextVersion := current.Version + 1
		raw, err := fetcher.FetchRole(ctx, repo, data.RoleRoot, &nextVersion)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		env, err := decodeEnvelope(repo, data.RoleRoot, raw)
		if err != nil {
			return nil, nil, err
		}

		oldAuth, ok := authorityFor(current, data.RoleRoot)
		if !ok {
			return nil, nil, newErr(UnknownRole, repo, data.RoleRoot, "current root has no root role entry")
		}
		if _, err := VerifySigned(repo, data.RoleRoot, env, oldAuth); err != nil {
			return nil, nil, err
		}

		var candidate data.Root
		if err := json.Unmarshal(env.Signed, &candidate); err != nil {
			return nil, nil, newErr(MalformedDocument, repo, data.RoleRoot, "unmarshaling candidate root: %v", err)
		}
		if candidate.Version != nextVersion {
			return nil, nil, newErr(VersionRollback, repo, data.RoleRoot, "expected version %d, got %d", nextVersion, candidate.Version)
		}

		newAuth, ok := authorityFor(&candidate, data.RoleRoot)
		if !ok {
			return nil, nil, newErr(UnknownRole, repo, data.RoleRoot, "candidate root has no root role entry")
		}
		if _, err := VerifySigned(repo, data.RoleRoot, env, newAuth); err != nil {
			return nil, nil, err
		}

		chain = append(chain, versionedRaw{version: nextVersion, raw: raw})
		current = &candidate
	}

	if !current.Expires.After(now) {
		return nil, nil, newErr(Expired, repo, data.RoleRoot, "root version %d expired at %s", current.Version, current.Expires)
	}
	return current, chain, nil
}
