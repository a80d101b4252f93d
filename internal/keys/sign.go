package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Sign signs payload with the key held in seed and returns the raw signature.
func Sign(seed, payload []byte) ([]byte, error) {
	if len(seed) != seedLen {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", seedLen, len(seed))
	}
	priv := solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
	sig, err := priv.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	return sig[:], nil
}

// Verify checks a signature against a hex public key.
func Verify(publicKeyHex string, payload, sig []byte) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}
