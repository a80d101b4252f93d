package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Observer is notified of every command issued through a registry's clients,
// before the command reaches the worker.
type Observer func(network string, cmd Command, args []any)

// Option configures a Registry.
type Option func(*Registry)

// WithObserver installs a command observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithClock overrides the time source handed to workers.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry lazily creates and caches one worker per network name. It is owned
// by a vault context and handed to every flow; there is no global registry.
type Registry struct {
	mu       sync.Mutex
	workers  map[string]*Worker
	store    keyvault.Store
	observer Observer
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry whose workers persist through store.
func NewRegistry(store keyvault.Store, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		workers: make(map[string]*Worker),
		store:   store,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Activate returns the client for network, creating its worker on first use,
// and configures it with the address selected for this activation (which may
// be empty).
func (r *Registry) Activate(ctx context.Context, network, address string) (*Client, Config, error) {
	client := &Client{worker: r.worker(network), observer: r.observer}
	cfg, err := client.Configure(ctx, Config{NetworkName: network, Address: address})
	if err != nil {
		return nil, Config{}, err
	}
	return client, cfg, nil
}

// Len returns the number of workers created so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Close stops every worker. Workers die with their context; Close is called
// once, at context teardown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, w := range r.workers {
		w.stop()
		delete(r.workers, name)
	}
}

func (r *Registry) worker(network string) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[network]
	if !ok {
		r.logger.Debug().Str("network", network).Msg("Starting network worker")
		w = newWorker(network, r.store, r.now, r.logger)
		r.workers[network] = w
	}
	return w
}
