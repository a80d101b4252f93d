package dispatch

import (
	"context"
	"time"

	"github.com/tinywideclouds/go-key-vault/internal/delivery"
	"github.com/tinywideclouds/go-key-vault/internal/flow"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// outcome is what an action hands to the delivery stage.
type outcome struct {
	label        string
	result       any
	after        func(ctx context.Context) error
	successTitle string
	successDelay time.Duration
}

func (d *Dispatcher) execute(ctx context.Context, req request, deliverer *delivery.Deliverer) (outcome, error) {
	switch req.action {
	case keyvault.ActionNewUnprotectedKeyAndSign:
		return d.newUnprotectedKeyAndSign(ctx, req.params)
	case keyvault.ActionNewKeyAndSign:
		return d.newKeyAndSign(ctx, req.params)
	case keyvault.ActionShowKeyDetail:
		return d.showKeyDetail(ctx, req.params, deliverer)
	default:
		return d.signTx(ctx, req.params, req.tx, deliverer)
	}
}

func (d *Dispatcher) newUnprotectedKeyAndSign(ctx context.Context, p keyvault.Params) (outcome, error) {
	key, err := flow.NewGenerateUnprotected(d.env, p.Platform, p.Network, p.PhoneNum).Run(ctx)
	if err != nil {
		return outcome{}, err
	}
	d.refreshKeys(ctx)

	sig, err := flow.SignMessage(ctx, d.env, p.Network, key.Entry.Address, p.MessageHex, "")
	if err != nil {
		return outcome{}, err
	}
	d.env.UI.Loading("Registering Key", "")
	return outcome{
		label: "Registering Key",
		result: keyvault.NewKeyResult{
			Address:       key.Entry.Address,
			PublicKey:     key.Entry.PublicKey,
			Signature:     sig,
			PhoneNumber:   key.PhoneNumber,
			EncPassphrase: key.EncPassphrase,
		},
	}, nil
}

func (d *Dispatcher) newKeyAndSign(ctx context.Context, p keyvault.Params) (outcome, error) {
	key, err := flow.NewGenerateProtected(d.env, p.Platform, p.Network).Run(ctx)
	if err != nil {
		return outcome{}, err
	}
	d.refreshKeys(ctx)

	sig, err := flow.SignMessage(ctx, d.env, p.Network, key.Entry.Address, p.MessageHex, key.PIN)
	if err != nil {
		return outcome{}, err
	}
	d.env.UI.Loading("Registering Key", "")
	return outcome{
		label: "Registering Key",
		result: keyvault.NewKeyResult{
			Address:   key.Entry.Address,
			PublicKey: key.Entry.PublicKey,
			Signature: sig,
		},
		successTitle: "Key Created",
		successDelay: NewKeySuccessDelay,
	}, nil
}

// detail runs the lookup with recovery and refreshes the key list when a key
// had to be restored.
func (d *Dispatcher) detail(ctx context.Context, p keyvault.Params, deliverer *delivery.Deliverer) (keyvault.KeyDetail, error) {
	f := flow.NewDetailWithRecovery(d.env, deliverer, p.Platform, p.Network, p.ID)
	detail, err := f.Run(ctx)
	if err != nil {
		return keyvault.KeyDetail{}, err
	}
	if f.Restored() {
		d.refreshKeys(ctx)
	}
	return detail, nil
}

func (d *Dispatcher) showKeyDetail(ctx context.Context, p keyvault.Params, deliverer *delivery.Deliverer) (outcome, error) {
	detail, err := d.detail(ctx, p, deliverer)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		label:  "Loading Key",
		result: detail.State(),
		after: func(ctx context.Context) error {
			_, err := d.env.UI.Prompt(ctx, screen.Prompt{
				Kind:     screen.KindKeyDetail,
				Title:    "Key Detail",
				Platform: p.Platform,
				Network:  detail.Network,
				Address:  detail.Address,
				Detail:   &detail,
			})
			return err
		},
	}, nil
}

func (d *Dispatcher) signTx(ctx context.Context, p keyvault.Params, tx keyvault.Transaction, deliverer *delivery.Deliverer) (outcome, error) {
	detail, err := d.detail(ctx, p, deliverer)
	if err != nil {
		return outcome{}, err
	}
	deliverer.Report(ctx, detail.State())

	signed, err := flow.NewSignTransaction(d.env, detail, tx).Run(ctx)
	if err != nil {
		return outcome{}, err
	}
	d.env.UI.Loading("Posting Transaction", "")
	return outcome{
		label:        "Posting Transaction",
		result:       signed,
		successTitle: "Transaction Signed",
		successDelay: TxSuccessDelay,
	}, nil
}
