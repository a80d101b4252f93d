package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tinywideclouds/go-key-vault/internal/keys"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

type handler func(w *Worker, ctx context.Context, args []any) (any, error)

var handlers = map[Command]handler{
	CmdConfigure:              (*Worker).configure,
	CmdGeneratePassphrase:     (*Worker).generatePassphrase,
	CmdStoreUnprotectedKey:    (*Worker).storeUnprotectedKey,
	CmdStoreProtectedKey:      (*Worker).storeProtectedKey,
	CmdGetStoredKeyInfo:       (*Worker).getStoredKeyInfo,
	CmdGetStoredKeyPassphrase: (*Worker).getStoredKeyPassphrase,
	CmdGetPassphraseInfo:      (*Worker).getPassphraseInfo,
	CmdSignTransaction:        (*Worker).signTransaction,
	CmdSignMessage:            (*Worker).signMessage,
}

// PassphraseInfo is the result of getPassphraseInfo.
type PassphraseInfo struct {
	keys.Info
	// Stored reports whether this network already holds the derived key.
	Stored bool `json:"stored"`
}

func (w *Worker) configure(ctx context.Context, args []any) (any, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	cfg, ok := args[0].(Config)
	if !ok {
		return nil, fmt.Errorf("%w: configure expects a Config, got %T", ErrBadCommand, args[0])
	}
	if cfg.NetworkName != "" && cfg.NetworkName != w.network {
		return nil, fmt.Errorf("worker for %s cannot be configured for %s", w.network, cfg.NetworkName)
	}
	w.cfg.Address = cfg.Address
	return w.cfg, nil
}

func (w *Worker) generatePassphrase(ctx context.Context, args []any) (any, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	n, ok := args[0].(int)
	if !ok {
		return nil, fmt.Errorf("%w: length must be an int, got %T", ErrBadCommand, args[0])
	}
	return keys.GeneratePassphrase(n)
}

func (w *Worker) storeUnprotectedKey(ctx context.Context, args []any) (any, error) {
	if err := arity(args, 3); err != nil {
		return nil, err
	}
	network, passphrase, err := networkAndPassphrase(w, args)
	if err != nil {
		return nil, err
	}
	image, ok := args[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: passphraseImage must be bytes, got %T", ErrBadCommand, args[2])
	}

	pair, info, err := derive(passphrase)
	if err != nil {
		return nil, err
	}
	record := keyvault.Record{
		Entry:           w.newEntry(network, info.Platform, pair),
		Secret:          pair.Seed,
		PassphraseImage: image,
	}
	record.Entry.HasPassphrase = len(image) > 0

	if err := w.store.Put(ctx, record); err != nil {
		return nil, err
	}
	w.logger.Info().Str("entry_id", record.Entry.ID).Msg("Stored unprotected key")
	return record.Entry, nil
}

func (w *Worker) storeProtectedKey(ctx context.Context, args []any) (any, error) {
	if err := arity(args, 3); err != nil {
		return nil, err
	}
	network, passphrase, err := networkAndPassphrase(w, args)
	if err != nil {
		return nil, err
	}
	pin, ok := args[2].(string)
	if !ok {
		return nil, fmt.Errorf("%w: pin must be a string, got %T", ErrBadCommand, args[2])
	}

	pair, info, err := derive(passphrase)
	if err != nil {
		return nil, err
	}
	sealed, salt, err := keys.SealSeed(pair.Seed, pin)
	clear(pair.Seed)
	if err != nil {
		return nil, err
	}
	record := keyvault.Record{
		Entry:  w.newEntry(network, info.Platform, pair),
		Secret: sealed,
		Salt:   salt,
	}
	record.Entry.HasPinProtection = true

	if err := w.store.Put(ctx, record); err != nil {
		return nil, err
	}
	w.logger.Info().Str("entry_id", record.Entry.ID).Msg("Stored PIN-protected key")
	return record.Entry, nil
}

func (w *Worker) getStoredKeyInfo(ctx context.Context, args []any) (any, error) {
	record, err := w.recordArg(ctx, args)
	if err != nil {
		return nil, err
	}
	return record.Entry, nil
}

func (w *Worker) getStoredKeyPassphrase(ctx context.Context, args []any) (any, error) {
	record, err := w.recordArg(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(record.PassphraseImage) == 0 {
		return nil, fmt.Errorf("entry %s has no passphrase image", record.Entry.ID)
	}
	return record.PassphraseImage, nil
}

func (w *Worker) getPassphraseInfo(ctx context.Context, args []any) (any, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	passphrase, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: passphrase must be a string, got %T", ErrBadCommand, args[0])
	}
	info, err := keys.Inspect(passphrase)
	if err != nil {
		return nil, err
	}
	_, err = w.findByAddress(ctx, info.Address)
	return PassphraseInfo{Info: info, Stored: err == nil}, nil
}

func (w *Worker) signMessage(ctx context.Context, args []any) (any, error) {
	if err := arity(args, 3); err != nil {
		return nil, err
	}
	address, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: address must be a string, got %T", ErrBadCommand, args[0])
	}
	messageHex, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: message must be a string, got %T", ErrBadCommand, args[1])
	}
	message, err := hex.DecodeString(messageHex)
	if err != nil {
		return nil, fmt.Errorf("message is not hex: %w", err)
	}

	seed, _, err := w.unlock(ctx, address, args[2])
	if err != nil {
		return nil, err
	}
	defer clear(seed)

	sig, err := keys.Sign(seed, message)
	if err != nil {
		return nil, err
	}
	return hex.EncodeToString(sig), nil
}

func (w *Worker) signTransaction(ctx context.Context, args []any) (any, error) {
	if err := arity(args, 4); err != nil {
		return nil, err
	}
	address, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: address must be a string, got %T", ErrBadCommand, args[0])
	}
	txType, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: txType must be a string, got %T", ErrBadCommand, args[1])
	}
	txData, ok := args[2].(map[string]any)
	if !ok && args[2] != nil {
		return nil, fmt.Errorf("%w: txData must be an object, got %T", ErrBadCommand, args[2])
	}

	seed, entry, err := w.unlock(ctx, address, args[3])
	if err != nil {
		return nil, err
	}
	defer clear(seed)

	unsigned := map[string]any{
		"type":            txType,
		"data":            txData,
		"network":         w.network,
		"senderPublicKey": entry.PublicKey,
		"senderAccount":   entry.AccountNo,
		"timestamp":       w.now().Unix(),
	}
	unsignedBytes, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	digest := sha256.Sum256(unsignedBytes)
	sig, err := keys.Sign(seed, digest[:])
	if err != nil {
		return nil, err
	}

	unsigned["signature"] = hex.EncodeToString(sig)
	signedJSON, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed transaction: %w", err)
	}
	txBytes := append(append([]byte{}, unsignedBytes...), sig...)
	fullHash := sha256.Sum256(txBytes)

	return keyvault.SignedTransaction{
		TransactionBytes:    hex.EncodeToString(txBytes),
		TransactionJSON:     signedJSON,
		TransactionFullHash: hex.EncodeToString(fullHash[:]),
	}, nil
}

// unlock finds the entry for address and returns its seed, unsealing it with
// the optional PIN when the key is PIN-protected.
func (w *Worker) unlock(ctx context.Context, address string, pinArg any) ([]byte, keyvault.KeyEntry, error) {
	pin, ok := pinArg.(string)
	if !ok && pinArg != nil {
		return nil, keyvault.KeyEntry{}, fmt.Errorf("%w: pin must be a string or nil, got %T", ErrBadCommand, pinArg)
	}
	record, err := w.findByAddress(ctx, address)
	if err != nil {
		return nil, keyvault.KeyEntry{}, err
	}
	if !record.Entry.HasPinProtection {
		return record.Secret, record.Entry, nil
	}
	if pin == "" {
		return nil, keyvault.KeyEntry{}, fmt.Errorf("key %s requires a PIN: %w", address, keyvault.ErrWrongPIN)
	}
	seed, err := keys.OpenSeed(record.Secret, record.Salt, pin)
	if err != nil {
		return nil, keyvault.KeyEntry{}, err
	}
	return seed, record.Entry, nil
}

func (w *Worker) findByAddress(ctx context.Context, address string) (keyvault.Record, error) {
	entries, err := w.store.List(ctx)
	if err != nil {
		return keyvault.Record{}, err
	}
	for _, e := range entries {
		if e.Address == address && e.Network == w.network {
			return w.store.Get(ctx, e.ID)
		}
	}
	return keyvault.Record{}, fmt.Errorf("address %s: %w", address, keyvault.ErrKeyMissing)
}

func (w *Worker) recordArg(ctx context.Context, args []any) (keyvault.Record, error) {
	if err := arity(args, 1); err != nil {
		return keyvault.Record{}, err
	}
	id, ok := args[0].(string)
	if !ok {
		return keyvault.Record{}, fmt.Errorf("%w: entryId must be a string, got %T", ErrBadCommand, args[0])
	}
	record, err := w.store.Get(ctx, id)
	if err != nil {
		return keyvault.Record{}, err
	}
	// entries of other networks are invisible to this worker
	if record.Entry.Network != w.network {
		return keyvault.Record{}, fmt.Errorf("entry %s on %s: %w", id, w.network, keyvault.ErrKeyMissing)
	}
	return record, nil
}

func (w *Worker) newEntry(network, platform string, pair keys.KeyPair) keyvault.KeyEntry {
	return keyvault.KeyEntry{
		ID:        keyvault.NewEntryID(platform),
		Platform:  platform,
		Network:   network,
		Address:   pair.Address,
		AccountNo: pair.AccountNo,
		PublicKey: pair.PublicKey,
		CreatedAt: w.now().UTC(),
	}
}

func derive(passphrase string) (keys.KeyPair, keys.Info, error) {
	info, err := keys.Inspect(passphrase)
	if err != nil {
		return keys.KeyPair{}, keys.Info{}, err
	}
	pair, err := keys.Derive(keys.Normalize(passphrase))
	if err != nil {
		return keys.KeyPair{}, keys.Info{}, err
	}
	return pair, info, nil
}

func networkAndPassphrase(w *Worker, args []any) (string, string, error) {
	network, ok := args[0].(string)
	if !ok {
		return "", "", fmt.Errorf("%w: network must be a string, got %T", ErrBadCommand, args[0])
	}
	if network != w.network {
		return "", "", fmt.Errorf("worker for %s cannot store keys for %s", w.network, network)
	}
	passphrase, ok := args[1].(string)
	if !ok || strings.TrimSpace(passphrase) == "" {
		return "", "", fmt.Errorf("%w: passphrase must be a non-empty string", ErrBadCommand)
	}
	return network, passphrase, nil
}

func arity(args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: expected %d arguments, got %d", ErrBadCommand, n, len(args))
	}
	return nil
}
