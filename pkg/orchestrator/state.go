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

// Package orchestrator implements the top-level update state machine
// of spec.md §4.6: Idle → CheckingMetadata → Downloading → Installing →
// Reporting → Idle, driving the repository verifier, target resolver,
// fetcher and package-manager/secondary collaborators through a single
// check→download→install→report cycle.
package orchestrator

// State is one node of the cycle state machine.
type State string

const (
	Idle             State = "Idle"
	CheckingMetadata State = "CheckingMetadata"
	Downloading      State = "Downloading"
	Installing       State = "Installing"
	Reporting        State = "Reporting"
)

// Result is the terminal outcome of one Run call. A cycle always
// returns to Idle; Result records which branch of spec.md §4.6's state
// diagram it took to get there.
type Result string

const (
	NoUpdate       Result = "NoUpdate"
	CheckFailed    Result = "CheckFailed"
	DownloadFailed Result = "DownloadFailed"
	InstallFailed  Result = "InstallFailed"
	Complete       Result = "Complete"
	Interrupted    Result = "Interrupted"
)

// CycleResult is what Run returns: the state the machine settled in
// (always Idle on return, per spec.md §4.6 "Idle (after any
// Reporting)") and which Result produced it.
type CycleResult struct {
	State  State
	Result Result
	Err    error
}
