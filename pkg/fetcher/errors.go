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

// Package fetcher retrieves role blobs (size-bounded) and target blobs
// (hash-verified, resumable) via a transport.Client, per spec.md §4.4.
package fetcher

import (
	"errors"
	"fmt"

	"github.com/ota-uptane/primary/pkg/uptane/verifier"
)

// ErrorKind is the FetchError taxonomy of spec.md §7.
type ErrorKind string

const (
	Transport ErrorKind = "Transport"
	NotFound  ErrorKind = "NotFound"
	// SizeExceeded covers both a role blob over its size cap and a
	// downloaded target whose final length or hash doesn't match its
	// declared descriptor: spec.md §7 closes the FetchError taxonomy at
	// five kinds, and both are "the blob doesn't match what it was
	// supposed to be" rather than a transport-layer failure.
	SizeExceeded ErrorKind = "SizeExceeded"
	Interrupted  ErrorKind = "Interrupted"
	Timeout      ErrorKind = "Timeout"
)

// Error is a FetchError.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("fetch: %s: %s", e.Kind, e.Message) }

// Is reports whether e matches target, so callers driving root
// rotation can test errors.Is(err, verifier.ErrNotFound) without caring
// that the fetcher wraps NotFound in its own concrete type.
func (e *Error) Is(target error) bool {
	return e.Kind == NotFound && target == verifier.ErrNotFound
}

func newErr(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the FetchError kind of err, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
