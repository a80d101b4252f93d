package worker

import (
	"context"
	"fmt"

	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Client is the typed view of the command contract. Each method is a single
// Call on the underlying worker.
type Client struct {
	worker   *Worker
	observer Observer
}

// Network returns the network of the underlying worker.
func (c *Client) Network() string {
	return c.worker.Network()
}

// Call issues a raw command.
func (c *Client) Call(ctx context.Context, cmd Command, args ...any) (any, error) {
	if c.observer != nil {
		c.observer(c.worker.Network(), cmd, args)
	}
	return c.worker.Call(ctx, cmd, args...)
}

// Configure issues configure.
func (c *Client) Configure(ctx context.Context, cfg Config) (Config, error) {
	return result[Config](c.Call(ctx, CmdConfigure, cfg))
}

// GeneratePassphrase issues generatePassphrase.
func (c *Client) GeneratePassphrase(ctx context.Context, words int) (string, error) {
	return result[string](c.Call(ctx, CmdGeneratePassphrase, words))
}

// StoreUnprotectedKey issues storeUnprotectedKey.
func (c *Client) StoreUnprotectedKey(ctx context.Context, network, passphrase string, image []byte) (keyvault.KeyEntry, error) {
	return result[keyvault.KeyEntry](c.Call(ctx, CmdStoreUnprotectedKey, network, passphrase, image))
}

// StoreProtectedKey issues storeProtectedKey.
func (c *Client) StoreProtectedKey(ctx context.Context, network, passphrase, pin string) (keyvault.KeyEntry, error) {
	return result[keyvault.KeyEntry](c.Call(ctx, CmdStoreProtectedKey, network, passphrase, pin))
}

// GetStoredKeyInfo issues getStoredKeyInfo.
func (c *Client) GetStoredKeyInfo(ctx context.Context, entryID string) (keyvault.KeyEntry, error) {
	return result[keyvault.KeyEntry](c.Call(ctx, CmdGetStoredKeyInfo, entryID))
}

// GetStoredKeyPassphrase issues getStoredKeyPassphrase and returns the image.
func (c *Client) GetStoredKeyPassphrase(ctx context.Context, entryID string) ([]byte, error) {
	return result[[]byte](c.Call(ctx, CmdGetStoredKeyPassphrase, entryID))
}

// GetPassphraseInfo issues getPassphraseInfo.
func (c *Client) GetPassphraseInfo(ctx context.Context, passphrase string) (PassphraseInfo, error) {
	return result[PassphraseInfo](c.Call(ctx, CmdGetPassphraseInfo, passphrase))
}

// SignTransaction issues signTransaction. An empty pin is sent as nil.
func (c *Client) SignTransaction(ctx context.Context, address string, tx keyvault.Transaction, pin string) (keyvault.SignedTransaction, error) {
	return result[keyvault.SignedTransaction](c.Call(ctx, CmdSignTransaction, address, tx.Type, tx.Data, optional(pin)))
}

// SignMessage issues signMessage and returns the hex signature.
func (c *Client) SignMessage(ctx context.Context, address, messageHex, pin string) (string, error) {
	return result[string](c.Call(ctx, CmdSignMessage, address, messageHex, optional(pin)))
}

func optional(pin string) any {
	if pin == "" {
		return nil
	}
	return pin
}

func result[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected worker result %T, want %T", v, zero)
	}
	return typed, nil
}
