// Package screen defines the human-confirmation capability of a vault context.
// A flow presents a Prompt and receives a Reply; what the prompt looks like is
// up to the UI implementation.
package screen

import (
	"context"
	"time"

	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Choice is the user's decision on a prompt.
type Choice string

// Choices.
const (
	OK     Choice = "ok"
	Cancel Choice = "cancel"
	Skip   Choice = "skip"
)

// Values of a KindAddKey reply.
const (
	AddGenerate = "generate"
	AddRestore  = "restore"
)

// Kind identifies a prompt.
type Kind string

// Prompt kinds.
const (
	KindPhoneNumber       Kind = "phoneNumber"
	KindPassphraseDisplay Kind = "passphraseDisplay"
	KindPassphraseConfirm Kind = "passphraseConfirm"
	KindPIN               Kind = "pin"
	KindRestore           Kind = "restore"
	KindTxDetail          Kind = "txDetail"
	KindKeyDetail         Kind = "keyDetail"
	KindAddKey            Kind = "addKey"
)

// Validator inspects a value while the user is typing it and returns a
// human-readable description, or an error explaining why it is unusable.
type Validator func(ctx context.Context, value string) (string, error)

// Prompt is the state presented to the user.
type Prompt struct {
	Kind    Kind
	Title   string
	Message string
	// Value is the prefilled value: phone number, passphrase to show or retype.
	Value    string
	Platform string
	Network  string
	Address  string
	// AccountNo and Tx are set for KindTxDetail.
	AccountNo  string
	Tx         *keyvault.Transaction
	RequirePIN bool
	Detail     *keyvault.KeyDetail
	Validate   Validator
}

// Reply is the user's answer.
type Reply struct {
	Choice Choice
	Value  string
	// Platform and Network are set by KindAddKey, with Value AddGenerate or
	// AddRestore.
	Platform string
	Network  string
}

// UI is everything a vault context needs from its screens.
type UI interface {
	// Prompt blocks until the user answers.
	Prompt(ctx context.Context, p Prompt) (Reply, error)
	// Loading replaces the content with a progress message.
	Loading(title, detail string)
	// Success shows a confirmation and returns after delay.
	Success(ctx context.Context, title, message string, delay time.Duration) error
	// Alert shows an error the user must see.
	Alert(message string)
	// Message replaces the content with raw text.
	Message(text string)
	// Welcome shows the landing state.
	Welcome(hasKeys bool)
	// KeyList refreshes the always-visible key list.
	KeyList(entries []keyvault.KeyEntry)
	// SetTheme switches the visual theme.
	SetTheme(t Theme)
}
