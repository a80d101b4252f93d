// Package keyvault contains the public domain models, interfaces and errors of
// the key vault. It defines the contract between a vault context, its parent
// application and its storage backends.
package keyvault

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyEntry is the public view of a stored key. It never carries key material.
type KeyEntry struct {
	ID               string    `json:"id" firestore:"id"`
	Platform         string    `json:"platform" firestore:"platform"`
	Network          string    `json:"network" firestore:"network"`
	Address          string    `json:"address" firestore:"address"`
	AccountNo        string    `json:"accountNo" firestore:"accountNo"`
	PublicKey        string    `json:"publicKey" firestore:"publicKey"`
	HasPinProtection bool      `json:"hasPinProtection" firestore:"hasPinProtection"`
	HasPassphrase    bool      `json:"hasPassphrase" firestore:"hasPassphrase"`
	CreatedAt        time.Time `json:"createdAt" firestore:"createdAt"`
}

// Record is what a Store persists for one entry. Secret holds the raw seed for
// unprotected keys and the sealed seed for PIN-protected keys; Salt is only set
// for the latter. Records are only ever read in full by a network worker.
type Record struct {
	Entry           KeyEntry `firestore:"entry"`
	Secret          []byte   `firestore:"secret"`
	Salt            []byte   `firestore:"salt,omitempty"`
	PassphraseImage []byte   `firestore:"passphraseImage,omitempty"`
}

// NewEntryID returns a fresh entry id of the form "<PLATFORM>-<uuid>".
func NewEntryID(platform string) string {
	prefix := strings.ToUpper(strings.TrimSpace(platform))
	if prefix == "" {
		prefix = "KEY"
	}
	return prefix + "-" + uuid.NewString()
}

// GroupByNetwork groups entries by network name, preserving their order.
// Entries without a network fall back to their platform.
func GroupByNetwork(entries []KeyEntry) (networks []string, groups map[string][]KeyEntry) {
	groups = make(map[string][]KeyEntry)
	for _, e := range entries {
		name := e.Network
		if name == "" {
			name = e.Platform
		}
		if _, seen := groups[name]; !seen {
			networks = append(networks, name)
		}
		groups[name] = append(groups[name], e)
	}
	return networks, groups
}

// KeyDetail is what the key detail screen shows. PassphraseImage is only set
// for keys stored with a passphrase image.
type KeyDetail struct {
	ID               string `json:"id"`
	Network          string `json:"network"`
	Address          string `json:"address"`
	AccountNo        string `json:"accountNo"`
	PublicKey        string `json:"publicKey"`
	HasPinProtection bool   `json:"hasPinProtection"`
	PassphraseImage  []byte `json:"passphraseImage,omitempty"`
}

// State reports the parent-facing view of a detail.
func (d KeyDetail) State() KeyState {
	return KeyState{
		HasKeyPair:    d.PublicKey != "",
		HasPassphrase: len(d.PassphraseImage) > 0,
	}
}
