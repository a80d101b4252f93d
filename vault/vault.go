// Package vault assembles one vault context: the entry store, the worker
// registry and the UI, served either to a parent application (RunChild) or
// to a person at the terminal (RunDirect).
package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/internal/artifact"
	"github.com/tinywideclouds/go-key-vault/internal/flow"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
	"github.com/tinywideclouds/go-key-vault/internal/worker"
	"github.com/tinywideclouds/go-key-vault/pkg/keystore"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
	"github.com/tinywideclouds/go-key-vault/vault/config"
)

// HandshakeCloseDelay is how long a failed handshake stays on screen.
const HandshakeCloseDelay = 5 * time.Second

// Option configures a Context.
type Option func(*Context)

// WithRenderer replaces the QR passphrase renderer.
func WithRenderer(r artifact.Renderer) Option {
	return func(c *Context) { c.env.Renderer = r }
}

// WithRegistryOptions configures the worker registry.
func WithRegistryOptions(opts ...worker.Option) Option {
	return func(c *Context) { c.registryOpts = opts }
}

// WithCloseDelay overrides HandshakeCloseDelay.
func WithCloseDelay(d time.Duration) Option {
	return func(c *Context) { c.closeDelay = d }
}

// Context is one vault instance. It owns its worker registry; workers live
// exactly as long as the context.
type Context struct {
	cfg          *config.Config
	store        keyvault.Store
	ui           screen.UI
	env          flow.Env
	registry     *worker.Registry
	registryOpts []worker.Option
	closeDelay   time.Duration
	logger       zerolog.Logger

	// busy serializes flows started from the direct-use menu.
	busy sync.Mutex
}

// New wires a context around store and ui.
func New(cfg *config.Config, store keyvault.Store, ui screen.UI, logger zerolog.Logger, opts ...Option) (*Context, error) {
	backup, err := artifact.NewBackupSealer(cfg.BackupPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup key: %w", err)
	}

	c := &Context{
		cfg:        cfg,
		store:      store,
		ui:         ui,
		closeDelay: HandshakeCloseDelay,
		logger:     logger.With().Str("component", "vault").Logger(),
		env: flow.Env{
			UI:       ui,
			Renderer: artifact.QRRenderer{Size: artifact.DefaultImageSize},
			Backup:   backup,
			Logger:   logger,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = worker.NewRegistry(store, logger, c.registryOpts...)
	c.env.Registry = c.registry
	return c, nil
}

// Close stops every worker of the context.
func (c *Context) Close() {
	c.registry.Close()
	c.logger.Debug().Msg("Vault context closed")
}

// Load reads the key list and shows the welcome state. An empty list is valid.
func (c *Context) Load(ctx context.Context) ([]keyvault.KeyEntry, error) {
	entries, err := c.keys().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	c.ui.KeyList(entries)
	c.ui.Welcome(len(entries) > 0)
	c.logger.Info().Int("keys", len(entries)).Msg("Vault loaded")
	return entries, nil
}

func (c *Context) keys() keystore.Lister {
	return keystore.ReadOnly(c.store)
}

func (c *Context) refresh(ctx context.Context) []keyvault.KeyEntry {
	entries, err := c.keys().List(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to refresh key list")
		return nil
	}
	c.ui.KeyList(entries)
	return entries
}
