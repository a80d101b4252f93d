package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	seedSalt       = "keyvault-seed"
	seedIterations = 2048
	seedLen        = ed25519.SeedSize
)

// KeyPair is the public description of a derived key plus its seed.
type KeyPair struct {
	Seed      []byte
	Address   string
	AccountNo string
	PublicKey string
}

// Derive turns a normalized passphrase into a key pair.
func Derive(passphrase string) (KeyPair, error) {
	if passphrase == "" {
		return KeyPair{}, ErrEmptyPassphrase
	}
	seed := pbkdf2.Key([]byte(passphrase), []byte(seedSalt), seedIterations, seedLen, sha256.New)
	return FromSeed(seed)
}

// FromSeed rebuilds a key pair from a stored seed.
func FromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != seedLen {
		return KeyPair{}, fmt.Errorf("seed must be %d bytes, got %d", seedLen, len(seed))
	}
	priv := solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
	pub := priv.PublicKey()

	return KeyPair{
		Seed:      seed,
		Address:   pub.String(),
		AccountNo: accountNumber(pub.Bytes()),
		PublicKey: hex.EncodeToString(pub.Bytes()),
	}, nil
}

// accountNumber is the little-endian uint64 of the first eight bytes of the
// public key hash.
func accountNumber(pub []byte) string {
	sum := sha256.Sum256(pub)
	return strconv.FormatUint(binary.LittleEndian.Uint64(sum[:8]), 10)
}
