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

import ucrypto "github.com/ota-uptane/primary/pkg/crypto"

// EcuSerial is an opaque per-ECU identifier.
type EcuSerial string

// HardwareIdentifier is an opaque hardware-id string an ECU reports and a
// target declares it is built for.
type HardwareIdentifier string

// Ecu describes one ECU known to this device: its identity, its signing
// key (for secondaries, used to verify their manifests), and whether it
// is the primary.
type Ecu struct {
	Serial     EcuSerial
	HardwareID HardwareIdentifier
	PublicKey  ucrypto.PublicKey
	IsPrimary  bool
}

// ResolvedTarget is a concrete update entry produced by the target
// resolver: filename, length, hashes, the ECU it is assigned to, the
// hardware id it claims to match, and URI hints.
type ResolvedTarget struct {
	Filename   string
	Length     int64
	Hashes     Hashes
	EcuSerial  EcuSerial
	HardwareID HardwareIdentifier
	URIs       []string
}
