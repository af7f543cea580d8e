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

	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// RoleFetcher is the narrow slice of pkg/fetcher the verifier needs:
// retrieve a raw signed-role blob. version nil means "latest". A
// fetcher that has no such version returns ErrNotFound.
type RoleFetcher interface {
	FetchRole(ctx context.Context, repo data.RepoKind, role data.RoleName, version *int64) ([]byte, error)
}

// MetadataStore is the narrow slice of pkg/store the verifier needs:
// durable, versioned role storage. Writes made during UpdateRepository
// are expected to be buffered by the caller and committed atomically
// only once the whole repository has validated (spec.md §6 "Writes
// within a cycle are buffered and committed atomically at cycle end").
type MetadataStore interface {
	Put(repo data.RepoKind, role data.RoleName, version int64, raw []byte) error
	Get(repo data.RepoKind, role data.RoleName) (raw []byte, version int64, found bool, err error)
}

// versionedRaw pairs a role version with its raw signed bytes, used to
// buffer a root-rotation chain before it is committed.
type versionedRaw struct {
	version int64
	raw     []byte
}
