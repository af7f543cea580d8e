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

// Command agent runs the long-running check→download→install→report
// loop of pkg/orchestrator, one cycle per poll interval.
package main

import (
	"context"
	gocrypto "crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ota-uptane/primary/pkg/config"
	"github.com/ota-uptane/primary/pkg/crypto"
	"github.com/ota-uptane/primary/pkg/fetcher"
	"github.com/ota-uptane/primary/pkg/orchestrator"
	"github.com/ota-uptane/primary/pkg/pkgmanager/fsimage"
	"github.com/ota-uptane/primary/pkg/secondary"
	"github.com/ota-uptane/primary/pkg/store"
	transport "github.com/ota-uptane/primary/pkg/transport/http"
	"github.com/ota-uptane/primary/pkg/uptane/data"
	"github.com/ota-uptane/primary/pkg/uptane/resolver"
	"github.com/ota-uptane/primary/pkg/uptane/verifier"
)

var (
	configPath string
	once       bool
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the Uptane primary update loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/ota-uptane/config.yaml", "path to the device's YAML config")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit instead of polling")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	sugar := logger.Sugar()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	orch, err := build(cfg, sugar)
	if err != nil {
		return fmt.Errorf("wiring orchestrator: %w", err)
	}

	if once || cfg.PollIntervalSeconds <= 0 {
		return runCycle(ctx, orch, sugar)
	}

	ticker := time.NewTicker(time.Duration(cfg.PollIntervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		if err := runCycle(ctx, orch, sugar); err != nil {
			sugar.Errorw("cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runCycle(ctx context.Context, orch *orchestrator.Orchestrator, logger *zap.SugaredLogger) error {
	res := orch.Run(ctx)
	logger.Infow("cycle complete", "state", res.State, "result", res.Result)
	if res.Err != nil {
		return res.Err
	}
	return nil
}

// build wires every Config collaborator the orchestrator needs: the
// device's persisted store, its primary key pair, the role fetcher and
// transport, and the package manager for its own ECU. Secondaries are
// not provisioned from YAML in this build (spec.md's secondary channel
// is deployment-specific); an empty map means a primary-only device.
func build(cfg *config.Config, logger *zap.SugaredLogger) (*orchestrator.Orchestrator, error) {
	primaryEcu, err := cfg.Primary()
	if err != nil {
		return nil, err
	}

	keyPair, err := loadPrimaryKey(cfg.PrimaryKey)
	if err != nil {
		return nil, fmt.Errorf("loading primary key: %w", err)
	}

	deviceStore, err := store.NewFile(cfg.StoragePath, keyPair)
	if err != nil {
		return nil, err
	}
	blobStore, err := store.NewFileBlobStore(cfg.StoragePath + "/blobs")
	if err != nil {
		return nil, err
	}

	client := transport.NewRetryableClient(cfg.RetryMax)
	roleFetcher := fetcher.NewRoleFetcher(client, map[data.RepoKind]string{
		data.RepoImage:    cfg.ImageRepoURL,
		data.RepoDirector: cfg.DirectorRepoURL,
	})
	if cfg.RoleSizeCaps.Timestamp > 0 {
		roleFetcher.SizeCaps[data.RoleTimestamp] = cfg.RoleSizeCaps.Timestamp
	}
	if cfg.RoleSizeCaps.Snapshot > 0 {
		roleFetcher.SizeCaps[data.RoleSnapshot] = cfg.RoleSizeCaps.Snapshot
	}
	if cfg.RoleSizeCaps.Targets > 0 {
		roleFetcher.SizeCaps[data.RoleTargets] = cfg.RoleSizeCaps.Targets
	}
	if cfg.RoleSizeCaps.Root > 0 {
		roleFetcher.SizeCaps[data.RoleRoot] = cfg.RoleSizeCaps.Root
	}
	cachingFetcher, err := fetcher.NewCachingRoleFetcher(roleFetcher, 64)
	if err != nil {
		return nil, err
	}

	knownEcus := make([]resolver.KnownEcu, 0, len(cfg.KnownEcus))
	secondaries := make(map[data.EcuSerial]secondary.Secondary)
	for _, e := range cfg.KnownEcus {
		knownEcus = append(knownEcus, resolver.KnownEcu{Serial: data.EcuSerial(e.Serial), HardwareID: data.HardwareIdentifier(e.HardwareID)})
	}

	pkgMgr := fsimage.New(cfg.StoragePath + "/installed")

	return orchestrator.New(orchestrator.Config{
		RoleFetcher:           cachingFetcher,
		TransportClient:       client,
		MetadataStore:         deviceStore,
		DeviceState:           deviceStore,
		BlobStore:             blobStore,
		Clock:                 verifier.SystemClock{},
		KnownEcus:             knownEcus,
		PrimarySerial:         data.EcuSerial(primaryEcu.Serial),
		PrimaryPkgManager:     pkgMgr,
		Secondaries:           secondaries,
		ManifestURL:           cfg.ManifestURL,
		ImageRepoURL:          cfg.ImageRepoURL,
		DownloadConcurrency:   cfg.DownloadConcurrency,
		ProgressIntervalBytes: cfg.ProgressIntervalBytes,
		MaxFetchAttempts:      cfg.RetryMax,
		Logger:                logger,
	}), nil
}

// loadPrimaryKey resolves the device's signing key pair from its
// PKCS#12 bundle, or generates a throwaway Ed25519 pair when no bundle
// is configured (local/dev use only).
func loadPrimaryKey(kc config.KeyConfig) (crypto.KeyPair, error) {
	if kc.PKCS12Path == "" {
		return crypto.GenerateKeypair(crypto.KeyTypeEd25519)
	}
	blob, err := os.ReadFile(kc.PKCS12Path)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	priv, cert, _, err := crypto.ParsePKCS12(blob, kc.PKCS12Password)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	signer, ok := priv.(gocrypto.Signer)
	if !ok {
		return crypto.KeyPair{}, fmt.Errorf("pkcs12 private key does not implement crypto.Signer")
	}

	var pub crypto.PublicKey
	switch certPub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		pub, err = crypto.NewRSAPublicKey(certPub)
		if err != nil {
			return crypto.KeyPair{}, err
		}
	case ed25519.PublicKey:
		pub = crypto.NewEd25519PublicKey(certPub)
	default:
		return crypto.KeyPair{}, fmt.Errorf("unsupported pkcs12 certificate key type %T", certPub)
	}

	return crypto.KeyPair{Public: pub, Private: signer}, nil
}
