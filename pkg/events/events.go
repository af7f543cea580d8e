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

// Package events implements the orchestrator's broadcast event bus:
// one tagged Event sum type, fanned out to subscribers without ever
// blocking the publisher (spec.md §4.7, §9 "Signals/event bus").
package events

import (
	"sync"

	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// Kind discriminates the Event variants.
type Kind string

const (
	SendDeviceDataComplete Kind = "SendDeviceDataComplete"
	PutManifestComplete    Kind = "PutManifestComplete"
	UpdateCheckComplete    Kind = "UpdateCheckComplete"
	DownloadProgressReport Kind = "DownloadProgressReport"
	DownloadTargetComplete Kind = "DownloadTargetComplete"
	AllDownloadsComplete   Kind = "AllDownloadsComplete"
	InstallStarted         Kind = "InstallStarted"
	InstallTargetComplete  Kind = "InstallTargetComplete"
	AllInstallsComplete    Kind = "AllInstallsComplete"
	CampaignCheckComplete  Kind = "CampaignCheckComplete"
	CampaignAcceptComplete Kind = "CampaignAcceptComplete"
)

// Result is the pass/fail outcome a phase-completion event carries.
type Result struct {
	Success bool
	Reason  string
}

// Event is the single tagged variant carrying every event class
// spec.md §4.7 enumerates. Only the fields relevant to Kind are set;
// this mirrors the "one sum type, _type string discriminant" shape
// spec.md §9 calls for, built the Go way (one struct, not an
// interface per variant) since every variant is fanned out through the
// same buffered channel type.
type Event struct {
	Kind Kind

	Serial data.EcuSerial
	Target string
	Desc   string
	Pct    int
	Ok     bool
	Result Result
}

// Bus is a non-blocking broadcast of Event to any number of
// subscribers: a slow or absent subscriber loses events rather than
// stalling the orchestrator, per spec.md §9.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving every future Publish call,
// buffered to bufSize so brief subscriber stalls don't drop events
// under ordinary load; once the buffer is full, further sends to this
// subscriber are dropped rather than blocking Publish.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish fans out ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish must not be called
// concurrently with or after Close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
