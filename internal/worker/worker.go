// Package worker runs the isolated per-network workers that own all key
// material of a vault context, and the registry that creates them lazily.
//
// A worker is a goroutine serving a request channel. Every caller goes through
// the same contract: a command name plus positional arguments, answered by a
// single result or an error. Key material never appears in a result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Command names a worker capability.
type Command string

// Commands understood by every worker.
const (
	CmdConfigure              Command = "configure"
	CmdGeneratePassphrase     Command = "generatePassphrase"
	CmdStoreUnprotectedKey    Command = "storeUnprotectedKey"
	CmdStoreProtectedKey      Command = "storeProtectedKey"
	CmdGetStoredKeyInfo       Command = "getStoredKeyInfo"
	CmdGetStoredKeyPassphrase Command = "getStoredKeyPassphrase"
	CmdGetPassphraseInfo      Command = "getPassphraseInfo"
	CmdSignTransaction        Command = "signTransaction"
	CmdSignMessage            Command = "signMessage"
)

var (
	// ErrBadCommand is returned for an unknown command or malformed arguments.
	ErrBadCommand = errors.New("bad worker command")

	// ErrStopped is returned when calling a worker whose context has closed.
	ErrStopped = errors.New("worker stopped")
)

// Config is the configuration a worker reports after configure.
type Config struct {
	NetworkName string `json:"networkName"`
	Address     string `json:"address,omitempty"`
}

type request struct {
	ctx   context.Context
	cmd   Command
	args  []any
	reply chan response
}

type response struct {
	value any
	err   error
}

// Worker is the handle to one network's worker goroutine.
type Worker struct {
	network  string
	requests chan request
	done     chan struct{}
	stopped  chan struct{}

	// owned by the worker goroutine
	cfg    Config
	store  keyvault.Store
	now    func() time.Time
	logger zerolog.Logger
}

func newWorker(network string, store keyvault.Store, now func() time.Time, logger zerolog.Logger) *Worker {
	w := &Worker{
		network:  network,
		requests: make(chan request),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		cfg:      Config{NetworkName: network},
		store:    store,
		now:      now,
		logger:   logger.With().Str("component", "worker").Str("network", network).Logger(),
	}
	go w.serve()
	return w
}

// Network returns the network this worker owns.
func (w *Worker) Network() string {
	return w.network
}

// Call sends one command to the worker and waits for its result. Cancelling
// ctx stops the wait; a command already running inside the worker completes
// and its result is dropped.
func (w *Worker) Call(ctx context.Context, cmd Command, args ...any) (any, error) {
	reply := make(chan response, 1)
	select {
	case w.requests <- request{ctx: ctx, cmd: cmd, args: args, reply: reply}:
	case <-w.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) serve() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case req := <-w.requests:
			value, err := w.handle(req.ctx, req.cmd, req.args)
			if err != nil {
				w.logger.Debug().Err(err).Str("command", string(req.cmd)).Msg("Worker command failed")
			}
			req.reply <- response{value: value, err: err}
		}
	}
}

func (w *Worker) stop() {
	close(w.done)
	<-w.stopped
}

func (w *Worker) handle(ctx context.Context, cmd Command, args []any) (any, error) {
	h, ok := handlers[cmd]
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", ErrBadCommand, cmd)
	}
	value, err := h(w, ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return value, nil
}
