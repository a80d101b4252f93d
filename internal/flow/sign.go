package flow

import (
	"context"

	"github.com/tinywideclouds/go-key-vault/internal/screen"
	"github.com/tinywideclouds/go-key-vault/internal/worker"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// SignMessage signs a hex payload with a stored key. An empty pin is fine for
// keys without PIN protection.
func SignMessage(ctx context.Context, env Env, network, address, messageHex, pin string) (string, error) {
	client, _, err := env.Registry.Activate(ctx, network, address)
	if err != nil {
		return "", err
	}
	env.UI.Loading("Signing Message", "")
	return client.SignMessage(ctx, address, messageHex, pin)
}

// Transaction-signing states.
const (
	SignTxActivate State = "activate"
	SignTxConfirm  State = "confirmTransaction"
	SignTxSign     State = "sign"
)

// SignTransaction shows a transaction to the user, collects a PIN when the
// key needs one, and signs it.
type SignTransaction struct {
	machine
	env    Env
	key    keyvault.KeyDetail
	tx     keyvault.Transaction
	client *worker.Client
	pin    string
	result keyvault.SignedTransaction
}

// NewSignTransaction prepares the flow for the key described by key.
func NewSignTransaction(env Env, key keyvault.KeyDetail, tx keyvault.Transaction) *SignTransaction {
	return &SignTransaction{
		machine: newMachine("signTransaction", SignTxActivate, env.Logger),
		env:     env,
		key:     key,
		tx:      tx,
	}
}

// Run executes the flow to completion.
func (f *SignTransaction) Run(ctx context.Context) (keyvault.SignedTransaction, error) {
	if err := f.run(ctx, f.step); err != nil {
		return keyvault.SignedTransaction{}, err
	}
	return f.result, nil
}

func (f *SignTransaction) step(ctx context.Context) error {
	switch f.state {
	case SignTxActivate:
		client, _, err := f.env.Registry.Activate(ctx, f.key.Network, f.key.Address)
		if err != nil {
			return err
		}
		f.client = client
		f.enter(SignTxConfirm)

	case SignTxConfirm:
		tx := f.tx
		reply, err := prompt(ctx, f.env.UI, screen.Prompt{
			Kind:       screen.KindTxDetail,
			Title:      "Confirm Transaction",
			Network:    f.key.Network,
			Address:    f.key.Address,
			AccountNo:  f.key.AccountNo,
			Tx:         &tx,
			RequirePIN: f.key.HasPinProtection,
		})
		if err != nil {
			return err
		}
		f.pin = reply.Value
		f.env.UI.Loading("Signing Transaction", "")
		f.enter(SignTxSign)

	case SignTxSign:
		signed, err := f.client.SignTransaction(ctx, f.key.Address, f.tx, f.pin)
		if err != nil {
			return err
		}
		f.result = signed
		f.enter(Done)

	default:
		return f.unknown()
	}
	return nil
}
