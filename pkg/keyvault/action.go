package keyvault

import (
	"context"
	"encoding/json"
)

// Action names a parent-facing operation.
type Action string

// The supported actions.
const (
	ActionNewUnprotectedKeyAndSign Action = "newUnprotectedKeyAndSign"
	ActionNewKeyAndSign            Action = "newKeyAndSign"
	ActionShowKeyDetail            Action = "showKeyDetail"
	ActionSignTx                   Action = "signTx"
)

// Actions lists every supported action.
var Actions = []Action{
	ActionNewUnprotectedKeyAndSign,
	ActionNewKeyAndSign,
	ActionShowKeyDetail,
	ActionSignTx,
}

// Valid reports whether a is one of the supported actions.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// Callback is the parent's remote result acceptor. Exactly one of err and
// result is meaningful. The returned error is the completion signal: non-nil
// means the parent did not accept the invocation.
type Callback interface {
	Invoke(ctx context.Context, err error, result any) error
}

// CallbackFunc adapts a function to the Callback interface.
type CallbackFunc func(ctx context.Context, err error, result any) error

// Invoke calls f.
func (f CallbackFunc) Invoke(ctx context.Context, err error, result any) error {
	return f(ctx, err, result)
}

// ActionRequest is one untrusted request from a parent context.
type ActionRequest struct {
	Style    string
	Action   Action
	Params   json.RawMessage
	Callback Callback
}

// Params is the union of every action's parameters.
type Params struct {
	Platform   string          `json:"platform"`
	Network    string          `json:"network"`
	MessageHex string          `json:"messageHex,omitempty"`
	PhoneNum   string          `json:"phoneNum,omitempty"`
	ID         string          `json:"id,omitempty"`
	Tx         json.RawMessage `json:"tx,omitempty"`
}

// Transaction is the opaque transaction a parent asks the vault to sign.
type Transaction struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// NewKeyResult is delivered by the key creation actions.
type NewKeyResult struct {
	Address       string `json:"address"`
	PublicKey     string `json:"publicKey"`
	Signature     string `json:"signature"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	EncPassphrase string `json:"encPassphrase,omitempty"`
}

// KeyState is the partial result reported while a key is looked up.
type KeyState struct {
	HasKeyPair    bool `json:"hasKeyPair"`
	HasPassphrase bool `json:"hasPassphrase"`
}

// SignedTransaction is delivered by signTx.
type SignedTransaction struct {
	TransactionBytes    string          `json:"transactionBytes"`
	TransactionJSON     json.RawMessage `json:"transactionJSON"`
	TransactionFullHash string          `json:"transactionFullHash"`
}
