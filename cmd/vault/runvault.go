package main

import (
	"context"
	_ "embed"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/internal/artifact"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
	boltstore "github.com/tinywideclouds/go-key-vault/internal/storage/bolt"
	fs "github.com/tinywideclouds/go-key-vault/internal/storage/firestore"
	"github.com/tinywideclouds/go-key-vault/internal/storage/inmemory"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
	"github.com/tinywideclouds/go-key-vault/vault"
	"github.com/tinywideclouds/go-key-vault/vault/config"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	parentURL := flag.String("parent", "", "websocket URL of the parent application; empty starts an interactive session")
	newBackupKey := flag.Bool("new-backup-key", false, "print a new SMS backup key pair and exit")
	flag.Parse()

	if *newBackupKey {
		if err := printBackupKeyPair(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// logs go to stderr so they do not interleave with the terminal UI
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// --- 1. Load Configuration ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Fatal().Err(err).Msg("Failed to unmarshal embedded yaml config")
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build base configuration from YAML")
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to finalize configuration with environment overrides")
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger = logger.Level(level)
	logger.Info().Str("run_mode", cfg.RunMode).Str("store", cfg.Store.Backend).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 2. Dependencies ---
	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize key store")
	}
	defer closeStore()

	terminal := screen.NewTerminal(os.Stdin, os.Stdout)
	v, err := vault.New(cfg, store, terminal, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create vault")
	}
	defer v.Close()

	// --- 3. Run ---
	if *parentURL != "" {
		err = v.RunChild(ctx, *parentURL)
	} else {
		err = v.RunDirect(ctx, terminal)
	}
	if err != nil && !keyvault.IsSilent(err) && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Vault finished with an error")
		os.Exit(1)
	}
	logger.Info().Msg("Vault closed")
}

// newStore opens the configured entry store and returns its closer.
func newStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (keyvault.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("Using in-memory key store; keys are lost on exit")
		return inmemory.New(), func() {}, nil

	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Store.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Firestore client for project %s: %w", cfg.Store.ProjectID, err)
		}
		logger.Info().Str("project_id", cfg.Store.ProjectID).Msg("Using Firestore key store")
		store := fs.NewFirestoreStore(client, cfg.Store.FirestoreCollection, logger)
		return store, func() { closeQuietly(client, logger) }, nil

	default:
		store, err := boltstore.Open(cfg.Store.BoltPath, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("path", cfg.Store.BoltPath).Msg("Using bolt key store")
		return store, func() { closeQuietly(store, logger) }, nil
	}
}

// printBackupKeyPair writes a key pair for the SMS backup service. Only the
// public key belongs in the vault config.
func printBackupKeyPair(w io.Writer) error {
	pub, priv, err := artifact.NewBackupKeyPair()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "backup_public_key: %s\nservice private key: %s\n",
		pub, base64.StdEncoding.EncodeToString(priv[:]))
	return err
}

func closeQuietly(c io.Closer, logger zerolog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn().Err(err).Msg("Close failed")
	}
}
