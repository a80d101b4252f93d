package flow

import (
	"context"
	"fmt"

	"github.com/tinywideclouds/go-key-vault/internal/screen"
	"github.com/tinywideclouds/go-key-vault/internal/worker"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Restore states.
const (
	RestoreActivate State = "activate"
	RestorePrompt   State = "restore"
	RestoreRender   State = "renderImage"
	RestoreStore    State = "store"
)

// RestoreKey stores an unprotected key from a passphrase the user types in.
// The input is checked live through getPassphraseInfo while it is typed.
type RestoreKey struct {
	machine
	env      Env
	platform string
	network  string
	title    string
	message  string

	client     *worker.Client
	passphrase string
	image      []byte
	result     keyvault.KeyEntry
}

// NewRestoreKey prepares the flow. title and message head the restore prompt.
func NewRestoreKey(env Env, platform, network, title, message string) *RestoreKey {
	return &RestoreKey{
		machine:  newMachine("restoreKey", RestoreActivate, env.Logger),
		env:      env,
		platform: platform,
		network:  network,
		title:    title,
		message:  message,
	}
}

// Run executes the flow and returns the stored entry.
func (f *RestoreKey) Run(ctx context.Context) (keyvault.KeyEntry, error) {
	if err := f.run(ctx, f.step); err != nil {
		return keyvault.KeyEntry{}, err
	}
	return f.result, nil
}

func (f *RestoreKey) step(ctx context.Context) error {
	switch f.state {
	case RestoreActivate:
		client, _, err := f.env.Registry.Activate(ctx, f.network, "")
		if err != nil {
			return err
		}
		f.client = client
		f.enter(RestorePrompt)

	case RestorePrompt:
		reply, err := prompt(ctx, f.env.UI, screen.Prompt{
			Kind:     screen.KindRestore,
			Title:    f.title,
			Message:  f.message,
			Platform: f.platform,
			Network:  f.network,
			Validate: f.validate,
		})
		if err != nil {
			return err
		}
		f.passphrase = reply.Value
		f.env.UI.Loading("Storing Key in Vault", "")
		f.enter(RestoreRender)

	case RestoreRender:
		image, err := f.env.Renderer.Render(f.passphrase)
		if err != nil {
			return err
		}
		f.image = image
		f.enter(RestoreStore)

	case RestoreStore:
		entry, err := f.client.StoreUnprotectedKey(ctx, f.network, f.passphrase, f.image)
		if err != nil {
			return err
		}
		f.passphrase = ""
		f.result = entry
		f.enter(Done)

	default:
		return f.unknown()
	}
	return nil
}

func (f *RestoreKey) validate(ctx context.Context, passphrase string) (string, error) {
	info, err := f.client.GetPassphraseInfo(ctx, passphrase)
	if err != nil {
		return "", err
	}
	desc := fmt.Sprintf("%s account %s (%d words)", info.Platform, info.AccountNo, info.WordCount)
	if info.Stored {
		desc += ", already stored"
	}
	return desc, nil
}
