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
	"net/http"

	transport "github.com/ota-uptane/primary/pkg/transport/http"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// Default role size caps, per spec.md §4.4.
const (
	DefaultTimestampCap int64 = 64 * 1024
	DefaultSnapshotCap  int64 = 500 * 1024
	DefaultTargetsCap   int64 = 500 * 1024
)

// RoleFetcher retrieves signed role documents over a transport.Client,
// enforcing a per-role size cap before the body is ever parsed. It
// satisfies pkg/uptane/verifier.RoleFetcher.
type RoleFetcher struct {
	Client   transport.Client
	BaseURLs map[data.RepoKind]string
	SizeCaps map[data.RoleName]int64
}

// NewRoleFetcher returns a RoleFetcher with spec.md's default size
// caps; override SizeCaps afterward for non-default roles.
func NewRoleFetcher(client transport.Client, baseURLs map[data.RepoKind]string) *RoleFetcher {
	return &RoleFetcher{
		Client:   client,
		BaseURLs: baseURLs,
		SizeCaps: map[data.RoleName]int64{
			data.RoleTimestamp: DefaultTimestampCap,
			data.RoleSnapshot:  DefaultSnapshotCap,
			data.RoleTargets:   DefaultTargetsCap,
		},
	}
}

func (f *RoleFetcher) capFor(role data.RoleName) int64 {
	if cap, ok := f.SizeCaps[role]; ok {
		return cap
	}
	return DefaultTargetsCap
}

// FetchRole implements pkg/uptane/verifier.RoleFetcher.
func (f *RoleFetcher) FetchRole(ctx context.Context, repo data.RepoKind, role data.RoleName, version *int64) ([]byte, error) {
	base, ok := f.BaseURLs[repo]
	if !ok {
		return nil, newErr(Transport, "no base url configured for repo %q", repo)
	}

	var filename string
	if version != nil {
		filename = fmt.Sprintf("%d.%s.json", *version, role)
	} else {
		filename = fmt.Sprintf("%s.json", role)
	}
	url := fmt.Sprintf("%s/%s", base, filename)

	resp, err := f.Client.Get(ctx, url, f.capFor(role))
	if err != nil {
		return nil, newErr(Transport, "%v", err)
	}
	if resp.Err != nil {
		return nil, newErr(Transport, "%v", resp.Err)
	}
	if resp.Status == http.StatusNotFound {
		return nil, newErr(NotFound, "%s", url)
	}
	if !resp.Ok() {
		return nil, newErr(Transport, "unexpected status %d fetching %s", resp.Status, url)
	}
	return resp.Body, nil
}
