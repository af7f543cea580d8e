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

package crypto

import "fmt"

// ErrorKind discriminates the CryptoError taxonomy from spec.md §7.
type ErrorKind string

const (
	BadKey              ErrorKind = "BadKey"
	UnsupportedAlgorithm ErrorKind = "UnsupportedAlgorithm"
)

// Error is the CryptoError of spec.md §7: signing fails with a typed
// error, never a panic. Verification never returns Error; it returns a
// plain bool per §4.1.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("crypto: %s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
