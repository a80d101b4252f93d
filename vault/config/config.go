// Package config builds the vault configuration in two stages: the embedded
// yaml file (NewConfigFromYaml), then environment overrides and validation
// (UpdateConfigWithEnvOverrides).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/internal/artifact"
	"github.com/tinywideclouds/go-key-vault/internal/parent"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
)

// EnvPrefix is prepended to every environment override, e.g. VAULT_STORE_BACKEND.
const EnvPrefix = "vault"

// Store backends.
const (
	BackendMemory    = "memory"
	BackendBolt      = "bolt"
	BackendFirestore = "firestore"
)

// StoreConfig selects and configures the entry store.
type StoreConfig struct {
	Backend             string
	BoltPath            string
	ProjectID           string
	FirestoreCollection string
}

// ParentConfig governs the child-context handshake.
type ParentConfig struct {
	AllowedOrigins []string
	// RequestTimeout bounds the wait for the parent's request; zero waits forever.
	RequestTimeout time.Duration
	TokenTTL       time.Duration
}

// Config is the single, authoritative configuration of a vault process.
type Config struct {
	RunMode  string
	LogLevel string
	// HTTPListenAddr enables the read-only key listing when set.
	HTTPListenAddr  string
	Store           StoreConfig
	Parent          ParentConfig
	BackupPublicKey string
	Themes          map[string]screen.ThemeConfig
}

// envOverrides is the stage 2 input. Unset variables leave the yaml value.
type envOverrides struct {
	RunMode             string        `envconfig:"RUN_MODE"`
	LogLevel            string        `envconfig:"LOG_LEVEL"`
	HTTPListenAddr      string        `envconfig:"HTTP_LISTEN_ADDR"`
	StoreBackend        string        `envconfig:"STORE_BACKEND"`
	BoltPath            string        `envconfig:"BOLT_PATH"`
	ProjectID           string        `envconfig:"PROJECT_ID"`
	FirestoreCollection string        `envconfig:"FIRESTORE_COLLECTION"`
	AllowedOrigins      []string      `envconfig:"ALLOWED_ORIGINS"`
	RequestTimeout      time.Duration `envconfig:"REQUEST_TIMEOUT"`
	TokenTTL            time.Duration `envconfig:"TOKEN_TTL"`
	BackupPublicKey     string        `envconfig:"BACKUP_PUBLIC_KEY"`
}

// UpdateConfigWithEnvOverrides applies VAULT_* environment variables to the
// stage 1 config, fills defaults and validates the result.
func UpdateConfigWithEnvOverrides(cfg *Config, logger zerolog.Logger) (*Config, error) {
	logger.Debug().Msg("Applying environment variable overrides...")

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}

	override := func(key string, dst *string, v string) {
		if v != "" {
			logger.Debug().Str("key", key).Str("source", "env").Msg("Overriding config value")
			*dst = v
		}
	}
	override("VAULT_RUN_MODE", &cfg.RunMode, env.RunMode)
	override("VAULT_LOG_LEVEL", &cfg.LogLevel, env.LogLevel)
	override("VAULT_HTTP_LISTEN_ADDR", &cfg.HTTPListenAddr, env.HTTPListenAddr)
	override("VAULT_STORE_BACKEND", &cfg.Store.Backend, env.StoreBackend)
	override("VAULT_BOLT_PATH", &cfg.Store.BoltPath, env.BoltPath)
	override("VAULT_PROJECT_ID", &cfg.Store.ProjectID, env.ProjectID)
	override("VAULT_FIRESTORE_COLLECTION", &cfg.Store.FirestoreCollection, env.FirestoreCollection)
	override("VAULT_BACKUP_PUBLIC_KEY", &cfg.BackupPublicKey, env.BackupPublicKey)
	if len(env.AllowedOrigins) > 0 {
		logger.Debug().Str("key", "VAULT_ALLOWED_ORIGINS").Str("source", "env").Msg("Overriding config value")
		cfg.Parent.AllowedOrigins = env.AllowedOrigins
	}
	if env.RequestTimeout > 0 {
		logger.Debug().Str("key", "VAULT_REQUEST_TIMEOUT").Str("source", "env").Msg("Overriding config value")
		cfg.Parent.RequestTimeout = env.RequestTimeout
	}
	if env.TokenTTL > 0 {
		logger.Debug().Str("key", "VAULT_TOKEN_TTL").Str("source", "env").Msg("Overriding config value")
		cfg.Parent.TokenTTL = env.TokenTTL
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		logger.Error().Err(err).Msg("Final config validation failed")
		return nil, err
	}

	logger.Debug().Msg("Configuration finalized and validated successfully")
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RunMode == "" {
		cfg.RunMode = "local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = zerolog.InfoLevel.String()
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendBolt
	}
	if cfg.Store.Backend == BackendBolt && cfg.Store.BoltPath == "" {
		cfg.Store.BoltPath = "vault.db"
	}
	if cfg.Parent.TokenTTL == 0 {
		cfg.Parent.TokenTTL = parent.DefaultTokenTTL
	}
	if cfg.Themes == nil {
		cfg.Themes = make(map[string]screen.ThemeConfig)
	}
}

func validate(cfg *Config) error {
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}
	switch cfg.Store.Backend {
	case BackendMemory, BackendBolt:
	case BackendFirestore:
		if cfg.Store.ProjectID == "" {
			return fmt.Errorf("store.project_id is required for the firestore backend")
		}
		if cfg.Store.FirestoreCollection == "" {
			return fmt.Errorf("store.firestore_collection is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if cfg.BackupPublicKey == "" {
		return fmt.Errorf("backup_public_key is required: set the SMS backup service's public key in the yaml or VAULT_BACKUP_PUBLIC_KEY")
	}
	if _, err := artifact.NewBackupSealer(cfg.BackupPublicKey); err != nil {
		return fmt.Errorf("invalid backup_public_key: %w", err)
	}
	return nil
}

func normalizeThemeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
