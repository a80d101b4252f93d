package config

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
)

// YamlConfig mirrors the raw config yaml file.
type YamlConfig struct {
	RunMode        string `yaml:"run_mode"`
	LogLevel       string `yaml:"log_level"`
	HTTPListenAddr string `yaml:"http_listen_addr"`

	Store struct {
		Backend             string `yaml:"backend"`
		BoltPath            string `yaml:"bolt_path"`
		ProjectID           string `yaml:"project_id"`
		FirestoreCollection string `yaml:"firestore_collection"`
	} `yaml:"store"`

	Parent struct {
		AllowedOrigins []string      `yaml:"allowed_origins"`
		// durations use time.ParseDuration syntax, e.g. "2m"
		RequestTimeout time.Duration `yaml:"request_timeout"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
	} `yaml:"parent"`

	BackupPublicKey string                        `yaml:"backup_public_key"`
	Themes          map[string]screen.ThemeConfig `yaml:"themes"`
}

// NewConfigFromYaml converts the raw unmarshaled yaml into a base Config.
// Stage 1: the Config exists, but without environment overrides.
func NewConfigFromYaml(baseCfg *YamlConfig, logger zerolog.Logger) (*Config, error) {
	logger.Debug().Msg("Mapping YAML config to base config struct")

	cfg := &Config{
		RunMode:        baseCfg.RunMode,
		LogLevel:       baseCfg.LogLevel,
		HTTPListenAddr: baseCfg.HTTPListenAddr,
		Store: StoreConfig{
			Backend:             baseCfg.Store.Backend,
			BoltPath:            baseCfg.Store.BoltPath,
			ProjectID:           baseCfg.Store.ProjectID,
			FirestoreCollection: baseCfg.Store.FirestoreCollection,
		},
		Parent: ParentConfig{
			AllowedOrigins: baseCfg.Parent.AllowedOrigins,
			RequestTimeout: baseCfg.Parent.RequestTimeout,
			TokenTTL:       baseCfg.Parent.TokenTTL,
		},
		BackupPublicKey: baseCfg.BackupPublicKey,
		Themes:          make(map[string]screen.ThemeConfig, len(baseCfg.Themes)),
	}
	for name, theme := range baseCfg.Themes {
		cfg.Themes[normalizeThemeName(name)] = theme
	}

	logger.Debug().
		Str("run_mode", cfg.RunMode).
		Str("store_backend", cfg.Store.Backend).
		Str("http_listen_addr", cfg.HTTPListenAddr).
		Strs("allowed_origins", cfg.Parent.AllowedOrigins).
		Int("themes", len(cfg.Themes)).
		Msg("YAML config mapping complete")

	return cfg, nil
}
