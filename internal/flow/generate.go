package flow

import (
	"context"
	"fmt"

	"github.com/tinywideclouds/go-key-vault/internal/keys"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
	"github.com/tinywideclouds/go-key-vault/internal/worker"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

const smsBackupWarning = "We will text the seed-passphrase to your phone for backup purpose.\n" +
	"SMS might be intercepted by an unknown third-party."

// UnprotectedKey is the result of GenerateUnprotected. PhoneNumber and
// EncPassphrase are empty when the user skipped the SMS backup.
type UnprotectedKey struct {
	Entry         keyvault.KeyEntry
	PhoneNumber   string
	EncPassphrase string
}

// Unprotected-key states.
const (
	UnprotectedActivate     State = "activate"
	UnprotectedConfirmPhone State = "confirmPhone"
	UnprotectedGenerate     State = "generatePassphrase"
	UnprotectedSeal         State = "sealBackup"
	UnprotectedRender       State = "renderImage"
	UnprotectedStore        State = "store"
)

// GenerateUnprotected creates a key recoverable from its passphrase alone.
type GenerateUnprotected struct {
	machine
	env      Env
	platform string
	network  string

	client     *worker.Client
	choice     screen.Choice
	passphrase string
	image      []byte
	result     UnprotectedKey
}

// NewGenerateUnprotected prepares the flow; phoneNumber prefills the SMS step.
func NewGenerateUnprotected(env Env, platform, network, phoneNumber string) *GenerateUnprotected {
	return &GenerateUnprotected{
		machine:  newMachine("generateUnprotected", UnprotectedActivate, env.Logger),
		env:      env,
		platform: platform,
		network:  network,
		result:   UnprotectedKey{PhoneNumber: phoneNumber},
	}
}

// Run executes the flow to completion.
func (f *GenerateUnprotected) Run(ctx context.Context) (UnprotectedKey, error) {
	if err := f.run(ctx, f.step); err != nil {
		return UnprotectedKey{}, err
	}
	return f.result, nil
}

func (f *GenerateUnprotected) step(ctx context.Context) error {
	switch f.state {
	case UnprotectedActivate:
		client, _, err := f.env.Registry.Activate(ctx, f.network, "")
		if err != nil {
			return err
		}
		f.client = client
		f.enter(UnprotectedConfirmPhone)

	case UnprotectedConfirmPhone:
		reply, err := f.env.UI.Prompt(ctx, screen.Prompt{
			Kind:     screen.KindPhoneNumber,
			Title:    "Backup by SMS",
			Message:  smsBackupWarning,
			Value:    f.result.PhoneNumber,
			Platform: f.platform,
			Network:  f.network,
		})
		if err != nil {
			return err
		}
		if reply.Choice != screen.OK && reply.Choice != screen.Skip {
			return keyvault.ErrCancelled
		}
		f.choice = reply.Choice
		f.result.PhoneNumber = reply.Value
		f.env.UI.Loading(fmt.Sprintf("Generating %s Key", f.platform), "")
		f.enter(UnprotectedGenerate)

	case UnprotectedGenerate:
		words, err := f.client.GeneratePassphrase(ctx, keys.DefaultPassphraseWords)
		if err != nil {
			return err
		}
		f.passphrase = keys.WithPlatform(f.platform, words)
		if f.choice == screen.Skip {
			f.result.PhoneNumber = ""
			f.enter(UnprotectedRender)
		} else {
			f.enter(UnprotectedSeal)
		}

	case UnprotectedSeal:
		if f.env.Backup == nil {
			return fmt.Errorf("no SMS backup key configured")
		}
		enc, err := f.env.Backup.Seal(f.passphrase)
		if err != nil {
			return err
		}
		f.result.EncPassphrase = enc
		f.enter(UnprotectedRender)

	case UnprotectedRender:
		f.env.UI.Loading("Storing Key in Vault", "")
		image, err := f.env.Renderer.Render(f.passphrase)
		if err != nil {
			return err
		}
		f.image = image
		f.enter(UnprotectedStore)

	case UnprotectedStore:
		entry, err := f.client.StoreUnprotectedKey(ctx, f.network, f.passphrase, f.image)
		if err != nil {
			return err
		}
		f.result.Entry = entry
		f.passphrase = ""
		f.enter(Done)

	default:
		return f.unknown()
	}
	return nil
}

// ProtectedKey is the result of GenerateProtected. The PIN is handed back so
// the caller can sign with the new key without prompting again.
type ProtectedKey struct {
	Entry keyvault.KeyEntry
	PIN   string
}

// Protected-key states.
const (
	ProtectedActivate State = "activate"
	ProtectedGenerate State = "generatePassphrase"
	ProtectedDisplay  State = "displayPassphrase"
	ProtectedConfirm  State = "confirmPassphrase"
	ProtectedPIN      State = "enterPIN"
	ProtectedStore    State = "store"
)

// GenerateProtected creates a key sealed under a user PIN. Display, retype and
// PIN entry always happen, in that order, before anything is stored.
type GenerateProtected struct {
	machine
	env      Env
	platform string
	network  string

	client     *worker.Client
	passphrase string
	pin        string
	pinError   string
	result     ProtectedKey
}

// NewGenerateProtected prepares the flow.
func NewGenerateProtected(env Env, platform, network string) *GenerateProtected {
	return &GenerateProtected{
		machine:  newMachine("generateProtected", ProtectedActivate, env.Logger),
		env:      env,
		platform: platform,
		network:  network,
	}
}

// Run executes the flow to completion.
func (f *GenerateProtected) Run(ctx context.Context) (ProtectedKey, error) {
	if err := f.run(ctx, f.step); err != nil {
		return ProtectedKey{}, err
	}
	return f.result, nil
}

func (f *GenerateProtected) step(ctx context.Context) error {
	switch f.state {
	case ProtectedActivate:
		client, _, err := f.env.Registry.Activate(ctx, f.network, "")
		if err != nil {
			return err
		}
		f.client = client
		f.env.UI.Loading(fmt.Sprintf("Generating Passphrase for %s", f.platform), "")
		f.enter(ProtectedGenerate)

	case ProtectedGenerate:
		words, err := f.client.GeneratePassphrase(ctx, keys.DefaultPassphraseWords)
		if err != nil {
			return err
		}
		f.passphrase = keys.WithPlatform(f.platform, words)
		f.enter(ProtectedDisplay)

	case ProtectedDisplay:
		_, err := prompt(ctx, f.env.UI, screen.Prompt{
			Kind:     screen.KindPassphraseDisplay,
			Title:    "Your Passphrase",
			Value:    f.passphrase,
			Platform: f.platform,
			Network:  f.network,
		})
		if err != nil {
			return err
		}
		f.enter(ProtectedConfirm)

	case ProtectedConfirm:
		_, err := prompt(ctx, f.env.UI, screen.Prompt{
			Kind:  screen.KindPassphraseConfirm,
			Title: "Confirm your Passphrase",
			Value: f.passphrase,
		})
		if err != nil {
			return err
		}
		f.enter(ProtectedPIN)

	case ProtectedPIN:
		message := "The PIN unlocks this key whenever it signs."
		if f.pinError != "" {
			message = f.pinError
		}
		reply, err := prompt(ctx, f.env.UI, screen.Prompt{
			Kind:    screen.KindPIN,
			Title:   "Choose a PIN",
			Message: message,
		})
		if err != nil {
			return err
		}
		// stay on the PIN screen until the PIN is well formed
		if err := keys.ValidatePIN(reply.Value); err != nil {
			f.pinError = err.Error()
			f.logger.Debug().Err(err).Msg("PIN rejected, asking again")
			return nil
		}
		f.pin = reply.Value
		f.env.UI.Loading("Securely Storing your Key in this Vault", "")
		f.enter(ProtectedStore)

	case ProtectedStore:
		entry, err := f.client.StoreProtectedKey(ctx, f.network, f.passphrase, f.pin)
		if err != nil {
			return err
		}
		f.result = ProtectedKey{Entry: entry, PIN: f.pin}
		f.passphrase = ""
		f.enter(Done)

	default:
		return f.unknown()
	}
	return nil
}
