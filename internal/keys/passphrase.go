// Package keys holds the key material primitives used inside a network worker:
// passphrase generation, seed derivation, PIN sealing and signing. Nothing in
// this package should be called outside a worker goroutine.
package keys

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// DefaultPassphraseWords is the number of words the vault asks for.
const DefaultPassphraseWords = 10

// GeneratePassphrase returns n words drawn uniformly from the BIP-39 English list.
func GeneratePassphrase(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("passphrase length must be positive, got %d", n)
	}
	list := bip39.GetWordList()
	limit := big.NewInt(int64(len(list)))

	words := make([]string, n)
	for i := range words {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to draw passphrase word: %w", err)
		}
		words[i] = list[idx.Int64()]
	}
	return strings.Join(words, " "), nil
}

// WithPlatform prefixes a generated passphrase with the lowercased platform name,
// so that a restored passphrase can tell which platform it belongs to.
func WithPlatform(platform, passphrase string) string {
	return strings.ToLower(strings.TrimSpace(platform)) + " " + passphrase
}

// Normalize collapses whitespace and case so that retyped passphrases derive
// the same key.
func Normalize(passphrase string) string {
	return strings.ToLower(strings.Join(strings.Fields(passphrase), " "))
}

// Info describes a passphrase without storing anything.
type Info struct {
	Platform  string `json:"platform,omitempty"`
	WordCount int    `json:"wordCount"`
	Address   string `json:"address"`
	AccountNo string `json:"accountNo"`
	PublicKey string `json:"publicKey"`
}

// ErrEmptyPassphrase is returned when a passphrase has no words.
var ErrEmptyPassphrase = errors.New("passphrase is empty")

// Inspect derives the public metadata of a passphrase. The leading word is
// reported as the platform when it is not a word-list word.
func Inspect(passphrase string) (Info, error) {
	normalized := Normalize(passphrase)
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return Info{}, ErrEmptyPassphrase
	}

	pair, err := Derive(normalized)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		WordCount: len(words),
		Address:   pair.Address,
		AccountNo: pair.AccountNo,
		PublicKey: pair.PublicKey,
	}
	if _, isWord := bip39.GetWordIndex(words[0]); !isWord && len(words) > 1 {
		info.Platform = strings.ToUpper(words[0])
		info.WordCount--
	}
	return info, nil
}
