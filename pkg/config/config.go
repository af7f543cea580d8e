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

// Package config reads the single YAML document a device is
// provisioned with: its identity, storage location, transport
// endpoints, per-repo size caps, retry policy, and the reference to
// its own signing key. cmd/agent and cmd/info both load this document
// once at process start.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EcuConfig declares one ECU this device knows about, primary or
// secondary.
type EcuConfig struct {
	Serial     string `yaml:"serial"`
	HardwareID string `yaml:"hardware_id"`
	Primary    bool   `yaml:"primary,omitempty"`
}

// KeyConfig locates the primary's signing key: a PKCS#12 bundle, the
// teacher/original's own on-disk key format (original_source/src/crypto
// loads client certs this way for mutual TLS and manifest signing
// alike).
type KeyConfig struct {
	PKCS12Path     string `yaml:"pkcs12_path"`
	PKCS12Password string `yaml:"pkcs12_password"`
}

// SizeCaps bounds role-document fetch sizes per spec.md §4.4's "size
// cap" parameter to fetch_role; zero means "use the fetcher's default".
type SizeCaps struct {
	Root      int64 `yaml:"root,omitempty"`
	Timestamp int64 `yaml:"timestamp,omitempty"`
	Snapshot  int64 `yaml:"snapshot,omitempty"`
	Targets   int64 `yaml:"targets,omitempty"`
}

// Config is the top-level provisioning document.
type Config struct {
	DeviceID    string `yaml:"device_id"`
	StoragePath string `yaml:"storage_path"`

	ImageRepoURL    string `yaml:"image_repo_url"`
	DirectorRepoURL string `yaml:"director_repo_url"`
	ManifestURL     string `yaml:"manifest_url"`

	KnownEcus []EcuConfig `yaml:"known_ecus"`
	PrimaryKey KeyConfig  `yaml:"primary_key"`

	RoleSizeCaps SizeCaps `yaml:"role_size_caps"`

	RetryMax              int   `yaml:"retry_max,omitempty"`
	DownloadConcurrency   int   `yaml:"download_concurrency,omitempty"`
	ProgressIntervalBytes int64 `yaml:"progress_interval_bytes,omitempty"`

	// PollIntervalSeconds is how often cmd/agent runs a cycle; zero
	// means "run once and exit" (used by one-shot invocations and
	// tests).
	PollIntervalSeconds int `yaml:"poll_interval_seconds,omitempty"`
}

// Load reads and parses the YAML document at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first missing required field, if any.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("config: device_id is required")
	}
	if c.StoragePath == "" {
		return fmt.Errorf("config: storage_path is required")
	}
	if c.ImageRepoURL == "" || c.DirectorRepoURL == "" {
		return fmt.Errorf("config: image_repo_url and director_repo_url are required")
	}
	if c.ManifestURL == "" {
		return fmt.Errorf("config: manifest_url is required")
	}
	if _, err := c.Primary(); err != nil {
		return err
	}
	return nil
}

// Primary returns the one EcuConfig marked Primary.
func (c *Config) Primary() (EcuConfig, error) {
	for _, e := range c.KnownEcus {
		if e.Primary {
			return e, nil
		}
	}
	return EcuConfig{}, fmt.Errorf("config: known_ecus declares no primary entry")
}
