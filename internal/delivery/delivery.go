// Package delivery hands terminal results of a flow back to the parent's
// callback. Success results are retried with exponential backoff; error
// results and intermediate reports are sent exactly once.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

const (
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries = 5
	// Multiplier is the growth factor between consecutive retry intervals.
	Multiplier = 1.71
)

// Progress is the part of the UI that shows delivery attempts.
type Progress interface {
	Loading(title, detail string)
}

// Option configures a Deliverer.
type Option func(*Deliverer)

// WithInitialInterval overrides the backoff library's base interval.
func WithInitialInterval(d time.Duration) Option {
	return func(dl *Deliverer) { dl.initial = d }
}

// WithObserver is called with every computed retry interval.
func WithObserver(fn func(attempt int, next time.Duration)) Option {
	return func(dl *Deliverer) { dl.observe = fn }
}

// Deliverer wraps one request's callback.
type Deliverer struct {
	callback keyvault.Callback
	progress Progress
	initial  time.Duration
	observe  func(attempt int, next time.Duration)
	logger   zerolog.Logger
}

// New wraps callback.
func New(callback keyvault.Callback, progress Progress, logger zerolog.Logger, opts ...Option) *Deliverer {
	d := &Deliverer{
		callback: callback,
		progress: progress,
		initial:  backoff.DefaultInitialInterval,
		logger:   logger.With().Str("component", "delivery").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends a success result, retrying up to MaxRetries times. Each failed
// attempt is shown as "<label> (attempt: N)". Exhausting the retries returns an
// error wrapping keyvault.ErrDelivery.
func (d *Deliverer) Deliver(ctx context.Context, label string, result any) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := d.callback.Invoke(ctx, nil, result)
		if err != nil {
			d.progress.Loading(
				fmt.Sprintf("%s (attempt: %d)", label, attempt),
				fmt.Sprintf("Error in Main App: %v", err),
			)
			d.logger.Warn().Err(err).Int("attempt", attempt).Str("label", label).Msg("Callback attempt failed")
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		if d.observe != nil {
			d.observe(attempt, next)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(d.policy(), MaxRetries), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		d.logger.Error().Err(err).Int("attempts", attempt).Msg("Callback delivery failed")
		return fmt.Errorf("%w after %d attempts: %w", keyvault.ErrDelivery, attempt, err)
	}
	d.logger.Debug().Int("attempts", attempt).Str("label", label).Msg("Callback delivered")
	return nil
}

// DeliverError sends a failure to the parent once.
func (d *Deliverer) DeliverError(ctx context.Context, flowErr error) error {
	if err := d.callback.Invoke(ctx, flowErr, nil); err != nil {
		return fmt.Errorf("%w: %w", keyvault.ErrDelivery, err)
	}
	return nil
}

// Report sends an intermediate result once. Failures are logged and dropped:
// a report only informs the parent and never gates the flow.
func (d *Deliverer) Report(ctx context.Context, result any) {
	if err := d.callback.Invoke(ctx, nil, result); err != nil {
		d.logger.Warn().Err(err).Msg("Intermediate report was not accepted")
	}
}

func (d *Deliverer) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initial
	b.Multiplier = Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
