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
	"errors"
	"fmt"

	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// ErrorKind is the VerifyError taxonomy of spec.md §7.
type ErrorKind string

const (
	Expired           ErrorKind = "Expired"
	ThresholdNotMet   ErrorKind = "ThresholdNotMet"
	UnknownRole       ErrorKind = "UnknownRole"
	VersionRollback   ErrorKind = "VersionRollback"
	BadSignature      ErrorKind = "BadSignature"
	MalformedDocument ErrorKind = "MalformedDocument"
	HashMismatch      ErrorKind = "HashMismatch"
	LengthMismatch    ErrorKind = "LengthMismatch"
	DelegationCycle   ErrorKind = "DelegationCycle"
)

// Error is a VerifyError: a machine-readable kind plus a human message,
// always naming the role and repo it concerns.
type Error struct {
	Kind    ErrorKind
	Repo    data.RepoKind
	Role    data.RoleName
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("verify %s/%s: %s: %s", e.Repo, e.Role, e.Kind, e.Message)
}

func newErr(kind ErrorKind, repo data.RepoKind, role data.RoleName, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Repo: repo, Role: role, Message: fmt.Sprintf(format, args...)}
}

// Kind returns the VerifyError kind of err, or "" if err is not one.
func Kind(err error) ErrorKind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// ErrNotFound is returned by a RoleFetcher when a requested role version
// does not exist on the server — the sentinel root rotation uses to stop
// iterating versions.
var ErrNotFound = errors.New("verifier: role not found")
