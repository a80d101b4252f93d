package keyvault

import (
	"errors"
)

var (
	// ErrValidation is returned when an action request is malformed. It is
	// raised before any worker or screen is touched.
	ErrValidation = errors.New("invalid request")

	// ErrCancelled is returned when the user declines a confirmation step.
	ErrCancelled = errors.New("cancelled by user")

	// ErrKeyMissing is returned when no entry exists for an id. Flows that
	// read key detail recover from it by restoring from a backup passphrase.
	ErrKeyMissing = errors.New("key missing")

	// ErrDelivery is returned when the parent callback could not be invoked
	// within the retry ceiling.
	ErrDelivery = errors.New("callback delivery failed")

	// ErrUnknownAction is returned for an action outside the supported set.
	ErrUnknownAction = errors.New("received unknown action from parent window")

	// ErrBusy is returned when a flow is started while another one is in flight.
	ErrBusy = errors.New("another operation is in progress")

	// ErrWrongPIN is returned when a PIN-protected key cannot be unsealed.
	ErrWrongPIN = errors.New("wrong PIN")
)

// IsSilent reports whether err should be swallowed by an interactive session
// rather than alerted to the user.
func IsSilent(err error) bool {
	return errors.Is(err, ErrCancelled)
}
