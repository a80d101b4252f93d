package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinywideclouds/go-key-vault/internal/worker"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Key-detail states.
const (
	DetailActivate   State = "activate"
	DetailInfo       State = "getStoredKeyInfo"
	DetailPassphrase State = "getStoredKeyPassphrase"
)

// KeyDetail reads the public view of one stored key.
type KeyDetail struct {
	machine
	env     Env
	network string
	id      string

	client *worker.Client
	result keyvault.KeyDetail
}

// NewKeyDetail prepares the flow.
func NewKeyDetail(env Env, network, id string) *KeyDetail {
	return &KeyDetail{
		machine: newMachine("keyDetail", DetailActivate, env.Logger),
		env:     env,
		network: network,
		id:      id,
	}
}

// Run executes the flow. A missing key fails with keyvault.ErrKeyMissing.
func (f *KeyDetail) Run(ctx context.Context) (keyvault.KeyDetail, error) {
	if err := f.run(ctx, f.step); err != nil {
		return keyvault.KeyDetail{}, err
	}
	return f.result, nil
}

func (f *KeyDetail) step(ctx context.Context) error {
	switch f.state {
	case DetailActivate:
		client, _, err := f.env.Registry.Activate(ctx, f.network, "")
		if err != nil {
			return err
		}
		f.client = client
		f.enter(DetailInfo)

	case DetailInfo:
		entry, err := f.client.GetStoredKeyInfo(ctx, f.id)
		if err != nil {
			return err
		}
		f.result = keyvault.KeyDetail{
			ID:               entry.ID,
			Network:          entry.Network,
			Address:          entry.Address,
			AccountNo:        entry.AccountNo,
			PublicKey:        entry.PublicKey,
			HasPinProtection: entry.HasPinProtection,
		}
		if entry.HasPassphrase {
			f.enter(DetailPassphrase)
		} else {
			f.enter(Done)
		}

	case DetailPassphrase:
		image, err := f.client.GetStoredKeyPassphrase(ctx, f.id)
		if err != nil {
			return err
		}
		f.result.PassphraseImage = image
		f.enter(Done)

	default:
		return f.unknown()
	}
	return nil
}

// Recovery states.
const (
	RecoveryDetail   State = "detail"
	RecoveryReport   State = "reportMissing"
	RecoveryRestore  State = "restore"
	RecoveryRedetail State = "redetail"
)

// DetailWithRecovery runs KeyDetail and, when the key is missing from this
// vault, lets the user restore it from its passphrase before reading the
// detail again. The restored entry has a new id, and the second read uses it.
type DetailWithRecovery struct {
	machine
	env      Env
	reporter Reporter
	platform string
	network  string
	id       string

	restoredID string
	result     keyvault.KeyDetail
}

// NewDetailWithRecovery prepares the flow. The reporter receives the
// {hasKeyPair:false, hasPassphrase:false} state before the restore prompt.
func NewDetailWithRecovery(env Env, reporter Reporter, platform, network, id string) *DetailWithRecovery {
	return &DetailWithRecovery{
		machine:  newMachine("detailWithRecovery", RecoveryDetail, env.Logger),
		env:      env,
		reporter: reporter,
		platform: platform,
		network:  network,
		id:       id,
	}
}

// Run executes the flow to completion.
func (f *DetailWithRecovery) Run(ctx context.Context) (keyvault.KeyDetail, error) {
	if err := f.run(ctx, f.step); err != nil {
		return keyvault.KeyDetail{}, err
	}
	return f.result, nil
}

// Restored reports whether the key had to be restored.
func (f *DetailWithRecovery) Restored() bool {
	return f.restoredID != ""
}

func (f *DetailWithRecovery) step(ctx context.Context) error {
	switch f.state {
	case RecoveryDetail:
		detail, err := NewKeyDetail(f.env, f.network, f.id).Run(ctx)
		switch {
		case errors.Is(err, keyvault.ErrKeyMissing):
			f.enter(RecoveryReport)
		case err != nil:
			return err
		default:
			f.result = detail
			f.enter(Done)
		}

	case RecoveryReport:
		if f.reporter != nil {
			f.reporter.Report(ctx, keyvault.KeyState{})
		}
		f.enter(RecoveryRestore)

	case RecoveryRestore:
		message := fmt.Sprintf("The key %s for %s is not in this vault. Enter its passphrase to restore it.", f.id, f.network)
		entry, err := NewRestoreKey(f.env, f.platform, f.network, "Key Missing", message).Run(ctx)
		if err != nil {
			return err
		}
		f.restoredID = entry.ID
		f.enter(RecoveryRedetail)

	case RecoveryRedetail:
		detail, err := NewKeyDetail(f.env, f.network, f.restoredID).Run(ctx)
		if err != nil {
			return err
		}
		f.result = detail
		f.enter(Done)

	default:
		return f.unknown()
	}
	return nil
}
