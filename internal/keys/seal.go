package keys

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	// A PIN has little entropy; scrypt only slows down offline guessing.
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 24
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,12}$`)

// ErrInvalidPIN is returned when a PIN is not 4 to 12 digits.
var ErrInvalidPIN = errors.New("PIN must be 4 to 12 digits")

// ValidatePIN checks the PIN format.
func ValidatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrInvalidPIN
	}
	return nil
}

// SealSeed encrypts a seed under a PIN. The result is nonce || box.
func SealSeed(seed []byte, pin string) (sealed, salt []byte, err error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, nil, err
	}

	salt = make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := pinKey(pin, salt)
	if err != nil {
		return nil, nil, err
	}

	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed = secretbox.Seal(nonce[:], seed, &nonce, key)
	return sealed, salt, nil
}

// OpenSeed reverses SealSeed. A wrong PIN yields keyvault.ErrWrongPIN.
func OpenSeed(sealed, salt []byte, pin string) ([]byte, error) {
	if len(sealed) < nonceLen+secretbox.Overhead {
		return nil, errors.New("sealed seed is truncated")
	}
	key, err := pinKey(pin, salt)
	if err != nil {
		return nil, err
	}

	var nonce [nonceLen]byte
	copy(nonce[:], sealed[:nonceLen])

	seed, ok := secretbox.Open(nil, sealed[nonceLen:], &nonce, key)
	if !ok {
		return nil, keyvault.ErrWrongPIN
	}
	return seed, nil
}

func pinKey(pin string, salt []byte) (*[32]byte, error) {
	derived, err := scrypt.Key([]byte(pin), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], derived)
	clear(derived)
	return &key, nil
}
