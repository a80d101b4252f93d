// Package dispatch validates one request from a parent context, runs the
// matching flow and hands the outcome to the parent's callback.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/internal/delivery"
	"github.com/tinywideclouds/go-key-vault/internal/flow"
	"github.com/tinywideclouds/go-key-vault/pkg/keystore"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// State is the dispatcher's lifecycle state.
type State string

// Dispatcher states. Closed is reachable from every other state.
const (
	Idle       State = "idle"
	Validating State = "validating"
	Executing  State = "executing"
	Delivering State = "delivering"
	Closed     State = "closed"
)

// Success screen delays.
const (
	NewKeySuccessDelay = time.Second
	TxSuccessDelay     = 2 * time.Second
)

// ErrClosed is returned by Dispatch once the dispatcher has closed.
var ErrClosed = errors.New("dispatcher closed")

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCloser is called once when the dispatcher closes its context.
func WithCloser(fn func()) Option {
	return func(d *Dispatcher) { d.closer = fn }
}

// WithDeliveryOptions configures the callback delivery of every request.
func WithDeliveryOptions(opts ...delivery.Option) Option {
	return func(d *Dispatcher) { d.deliveryOpts = opts }
}

// Dispatcher serves parent requests for one context. Only one request is
// executed at a time.
type Dispatcher struct {
	env          flow.Env
	lister       keystore.Lister
	closer       func()
	deliveryOpts []delivery.Option
	logger       zerolog.Logger

	inFlight sync.Mutex

	mu    sync.Mutex
	state State
	trace []State
}

// New creates an idle dispatcher. lister feeds the key list shown after a key
// is created or restored.
func New(env flow.Env, lister keystore.Lister, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		env:    env,
		lister: lister,
		logger: logger.With().Str("component", "dispatcher").Logger(),
		state:  Idle,
		trace:  []State{Idle},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Trace returns every state entered so far.
func (d *Dispatcher) Trace() []State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]State(nil), d.trace...)
}

func (d *Dispatcher) enter(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Closed {
		return
	}
	d.logger.Debug().Str("from", string(d.state)).Str("to", string(s)).Msg("Dispatcher transition")
	d.state = s
	d.trace = append(d.trace, s)
}

// Close moves the dispatcher to Closed and runs the closer once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.state == Closed {
		d.mu.Unlock()
		return
	}
	d.state = Closed
	d.trace = append(d.trace, Closed)
	d.mu.Unlock()

	d.logger.Info().Msg("Closing context")
	if d.closer != nil {
		d.closer()
	}
}

// Dispatch serves req. An unknown action is rejected without touching the
// callback or closing; the caller decides what to do with the context. Every
// other request ends with exactly one terminal callback and a close.
func (d *Dispatcher) Dispatch(ctx context.Context, req keyvault.ActionRequest) error {
	if !d.inFlight.TryLock() {
		return keyvault.ErrBusy
	}
	defer d.inFlight.Unlock()

	if d.State() != Idle {
		return ErrClosed
	}
	d.enter(Validating)

	if !req.Action.Valid() {
		d.logger.Warn().Str("action", string(req.Action)).Msg("Rejected unknown action")
		d.enter(Idle)
		return fmt.Errorf("%w: %q", keyvault.ErrUnknownAction, req.Action)
	}

	deliverer := delivery.New(req.Callback, d.env.UI, d.logger, d.deliveryOpts...)
	defer d.Close()

	valid, err := validate(req)
	if err != nil {
		d.logger.Warn().Err(err).Str("action", string(req.Action)).Msg("Rejected invalid request")
		d.fail(ctx, deliverer, err)
		return err
	}

	d.enter(Executing)
	log := d.logger.With().Str("action", string(req.Action)).Str("network", valid.params.Network).Logger()
	log.Info().Msg("Executing action")

	out, err := d.execute(ctx, valid, deliverer)
	if err != nil {
		if keyvault.IsSilent(err) {
			log.Info().Msg("Action cancelled by user")
		} else {
			log.Error().Err(err).Msg("Action failed")
		}
		d.fail(ctx, deliverer, err)
		return err
	}

	d.enter(Delivering)
	if err := deliverer.Deliver(ctx, out.label, out.result); err != nil {
		log.Error().Err(err).Msg("Result delivery failed")
		d.fail(ctx, deliverer, err)
		return err
	}

	if out.after != nil {
		if err := out.after(ctx); err != nil && !keyvault.IsSilent(err) {
			log.Warn().Err(err).Msg("Post-delivery screen failed")
		}
	}
	if out.successTitle != "" {
		if err := d.env.UI.Success(ctx, out.successTitle, "", out.successDelay); err != nil {
			log.Warn().Err(err).Msg("Success screen interrupted")
		}
	}
	log.Info().Msg("Action completed")
	return nil
}

// fail sends err to the parent once. The user only sees an alert when that
// send fails too.
func (d *Dispatcher) fail(ctx context.Context, deliverer *delivery.Deliverer, err error) {
	d.enter(Delivering)
	if sendErr := deliverer.DeliverError(ctx, err); sendErr != nil {
		d.logger.Error().Err(sendErr).Msg("Error callback failed")
		d.env.UI.Alert(fmt.Sprintf("Could not return error to parent window: %v", sendErr))
	}
}

// refreshKeys redraws the key list after the store has changed.
func (d *Dispatcher) refreshKeys(ctx context.Context) {
	if d.lister == nil {
		return
	}
	entries, err := d.lister.List(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to refresh key list")
		return
	}
	d.env.UI.KeyList(entries)
}
