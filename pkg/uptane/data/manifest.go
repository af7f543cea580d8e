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

package data

// EcuManifest is one ECU's entry in the aggregate manifest spec.md §4.6
// describes: its current installed hash, the outcome code of its last
// install attempt, and a nonce.
type EcuManifest struct {
	Serial        EcuSerial `json:"ecu_serial"`
	InstalledHash string    `json:"installed_hash"`
	OutcomeCode   string    `json:"outcome_code"`
	OutcomeMsg    string    `json:"outcome_message,omitempty"`
	Nonce         string    `json:"nonce"`
}

// Manifest is the signed report a device submits at the end of a cycle,
// listing, per ECU, its current installed content and last outcome.
type Manifest struct {
	SignedCommon
	PrimarySerial EcuSerial                     `json:"primary_ecu_serial"`
	Ecus          map[EcuSerial]EcuManifest      `json:"ecu_version_manifests"`
}
