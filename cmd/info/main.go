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

// Command info is a direct port of aktualizr_info (spec.md §6): it
// prints the device's configured storage path, device id, primary ECU
// serial/hardware id, the last-known root version per repository, and
// the currently installed target hash, then exits 0. It exits 1 on a
// store-access failure and 2 on a parse failure of a persisted
// document (original_source/src/aktualizr_info/aktualizr_info_config.h).
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ota-uptane/primary/pkg/config"
	"github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/store"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

const (
	exitOK          = 0
	exitStoreAccess = 1
	exitParse       = 2
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the device's provisioned identity and persisted update state",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runInfo(os.Stdout, os.Stderr))
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/ota-uptane/config.yaml", "path to the device's YAML config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStoreAccess)
	}
}

func runInfo(out, errOut *os.File) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return exitParse
	}

	primaryEcu, err := cfg.Primary()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return exitParse
	}

	st, err := store.NewFile(cfg.StoragePath, crypto.KeyPair{})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return exitStoreAccess
	}

	fmt.Fprintf(out, "Device ID: %s\n", cfg.DeviceID)
	fmt.Fprintf(out, "Storage path: %s\n", cfg.StoragePath)
	fmt.Fprintf(out, "Primary ECU serial: %s\n", primaryEcu.Serial)
	fmt.Fprintf(out, "Primary ECU hardware ID: %s\n", primaryEcu.HardwareID)

	for _, repo := range []data.RepoKind{data.RepoImage, data.RepoDirector} {
		raw, version, found, err := st.Get(repo, data.RoleRoot)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return exitStoreAccess
		}
		if !found {
			fmt.Fprintf(out, "%s root version: none persisted\n", repo)
			continue
		}
		var env data.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			fmt.Fprintln(errOut, err)
			return exitParse
		}
		var root data.Root
		if err := json.Unmarshal(env.Signed, &root); err != nil {
			fmt.Fprintln(errOut, err)
			return exitParse
		}
		fmt.Fprintf(out, "%s root version: %d\n", repo, version)
	}

	hashes, err := st.InstalledHashes()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return exitStoreAccess
	}
	if hash, ok := hashes[data.EcuSerial(primaryEcu.Serial)]; ok {
		fmt.Fprintf(out, "Installed target hash: %s\n", hash)
	} else {
		fmt.Fprintln(out, "Installed target hash: none")
	}

	return exitOK
}
