package artifact

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

const backupBlockType = "VAULT SMS BACKUP"

// BackupSealer encrypts passphrases for out-of-band SMS delivery.
type BackupSealer struct {
	recipient [32]byte
}

// NewBackupKeyPair creates the key pair of an SMS backup service. The public
// half, base64 encoded, goes into the vault config; the private half stays
// with the service that sends and opens backups.
func NewBackupKeyPair() (publicKeyB64 string, privateKey *[32]byte, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate backup key pair: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub[:]), priv, nil
}

// NewBackupSealer parses a base64 curve25519 public key.
func NewBackupSealer(publicKeyB64 string) (*BackupSealer, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode backup public key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("backup public key must be 32 bytes, got %d", len(raw))
	}
	s := &BackupSealer{}
	copy(s.recipient[:], raw)
	return s, nil
}

// Seal returns the passphrase sealed to the backup key, PEM armored.
func (s *BackupSealer) Seal(passphrase string) (string, error) {
	ct, err := box.SealAnonymous(nil, []byte(passphrase), &s.recipient, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to seal passphrase backup: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: backupBlockType, Bytes: ct})), nil
}

// OpenBackup reverses Seal for the holder of the backup private key.
func OpenBackup(armored string, publicKey, privateKey *[32]byte) (string, error) {
	block, _ := pem.Decode([]byte(armored))
	if block == nil || block.Type != backupBlockType {
		return "", fmt.Errorf("not an SMS backup block")
	}
	plain, ok := box.OpenAnonymous(nil, block.Bytes, publicKey, privateKey)
	if !ok {
		return "", fmt.Errorf("failed to open SMS backup")
	}
	return string(plain), nil
}
