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
	"path"
	"time"

	"github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// ResolveTargetMeta walks the delegation tree rooted at top looking for
// targetPath, per spec.md §4.4: a pre-order depth-first search that
// visits each delegated role's own Targets entries before descending
// further, stops descending a branch once a terminating delegation has
// been searched (whether or not it produced a match), and never visits
// the same delegated-role name twice. It returns (nil, nil) if no role
// declares targetPath.
func ResolveTargetMeta(ctx context.Context, repo data.RepoKind, fetcher RoleFetcher, top *data.Targets, targetPath string, now time.Time) (*data.TargetFileMeta, error) {
	visited := map[data.RoleName]bool{data.RoleTargets: true}
	meta, _, err := searchRole(ctx, repo, fetcher, top, targetPath, visited, nil, now)
	return meta, err
}

func searchRole(ctx context.Context, repo data.RepoKind, fetcher RoleFetcher, role *data.Targets, targetPath string, visited map[data.RoleName]bool, ancestors []data.RoleName, now time.Time) (*data.TargetFileMeta, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	if m, ok := role.Targets[targetPath]; ok {
		found := m
		return &found, true, nil
	}
	if role.Delegations == nil {
		return nil, false, nil
	}

	for _, del := range role.Delegations.Roles {
		if !pathMatches(del.Paths, targetPath) {
			continue
		}
		if inStack(ancestors, del.Name) {
			return nil, false, newErr(DelegationCycle, repo, del.Name, "delegation %q revisits an ancestor on its own path", del.Name)
		}
		if visited[del.Name] {
			continue
		}
		visited[del.Name] = true

		auth := Authority{Threshold: del.Threshold, Keys: filterDelegationKeys(role.Delegations.Keys, del.KeyIDs)}

		raw, err := fetcher.FetchRole(ctx, repo, del.Name, nil)
		if err != nil {
			return nil, false, err
		}
		env, err := decodeEnvelope(repo, del.Name, raw)
		if err != nil {
			return nil, false, err
		}
		if _, err := VerifySigned(repo, del.Name, env, auth); err != nil {
			return nil, false, err
		}
		var child data.Targets
		if err := json.Unmarshal(env.Signed, &child); err != nil {
			return nil, false, newErr(MalformedDocument, repo, del.Name, "unmarshaling delegated targets: %v", err)
		}
		if !child.Expires.After(now) {
			return nil, false, newErr(Expired, repo, del.Name, "delegated targets %q expired at %s", del.Name, child.Expires)
		}

		meta, found, err := searchRole(ctx, repo, fetcher, &child, targetPath, visited, append(ancestors, del.Name), now)
		if err != nil {
			return nil, false, err
		}
		if found {
			return meta, true, nil
		}
		if del.Terminating {
			return nil, false, nil
		}
	}
	return nil, false, nil
}

func inStack(ancestors []data.RoleName, name data.RoleName) bool {
	for _, a := range ancestors {
		if a == name {
			return true
		}
	}
	return false
}

func filterDelegationKeys(all map[string]crypto.PublicKey, keyIDs []string) map[string]crypto.PublicKey {
	out := make(map[string]crypto.PublicKey, len(keyIDs))
	for _, kid := range keyIDs {
		if pk, ok := all[kid]; ok {
			out[kid] = pk
		}
	}
	return out
}

// pathMatches reports whether targetPath matches any of a delegation's
// declared path patterns. A delegation with no declared paths matches
// nothing: Uptane delegations are expected to be scoped (spec.md §4.4),
// unlike plain TUF where an empty path list is sometimes read as
// match-all.
func pathMatches(patterns []string, targetPath string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, targetPath); err == nil && ok {
			return true
		}
	}
	return false
}
