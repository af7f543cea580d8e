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

package fetcher

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ota-uptane/primary/pkg/uptane/data"
	"github.com/ota-uptane/primary/pkg/uptane/verifier"
)

// CachingRoleFetcher memoizes FetchRole by (repo, role, version) behind
// an LRU, so a role document requested by explicit version (a root
// rotation step, or snapshot/targets at the version their parent
// declared) is fetched from inner at most once while it stays in the
// cache. Requests for "latest" (version nil), which include every
// delegated-role fetch made by the delegation walk, always go to inner
// and are never cached. Entries are keyed
// on version explicitly, never "latest", since only pinned-version
// lookups (the common case once a Targets/Snapshot chain has been
// verified) are safe to reuse across calls without risking a stale
// read of a still-moving role.
type CachingRoleFetcher struct {
	inner verifier.RoleFetcher
	cache *lru.Cache[string, []byte]
}

// NewCachingRoleFetcher wraps inner with an LRU cache holding up to size
// role documents.
func NewCachingRoleFetcher(inner verifier.RoleFetcher, size int) (*CachingRoleFetcher, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("fetcher: building role cache: %w", err)
	}
	return &CachingRoleFetcher{inner: inner, cache: c}, nil
}

func cacheKey(repo data.RepoKind, role data.RoleName, version *int64) (string, bool) {
	if version == nil {
		return "", false
	}
	return fmt.Sprintf("%s/%s@%d", repo, role, *version), true
}

// FetchRole implements verifier.RoleFetcher, serving pinned-version
// requests from cache when present.
func (c *CachingRoleFetcher) FetchRole(ctx context.Context, repo data.RepoKind, role data.RoleName, version *int64) ([]byte, error) {
	key, cacheable := cacheKey(repo, role, version)
	if cacheable {
		if raw, ok := c.cache.Get(key); ok {
			return raw, nil
		}
	}
	raw, err := c.inner.FetchRole(ctx, repo, role, version)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.cache.Add(key, raw)
	}
	return raw, nil
}

var _ verifier.RoleFetcher = (*CachingRoleFetcher)(nil)
