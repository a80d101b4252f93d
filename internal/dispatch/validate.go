package dispatch

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

var (
	platformPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,16}$`)
	networkPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
)

// request is a validated ActionRequest.
type request struct {
	action keyvault.Action
	params keyvault.Params
	tx     keyvault.Transaction
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", keyvault.ErrValidation, fmt.Sprintf(format, args...))
}

// validate checks every field an action needs. It has no side effects.
func validate(req keyvault.ActionRequest) (request, error) {
	out := request{action: req.Action}
	if len(req.Params) == 0 {
		return out, invalid("missing params")
	}
	if err := json.Unmarshal(req.Params, &out.params); err != nil {
		return out, invalid("invalid params %v", err)
	}
	p := out.params

	if !platformPattern.MatchString(p.Platform) {
		return out, invalid("invalid platform %s", p.Platform)
	}
	if !networkPattern.MatchString(p.Network) {
		return out, invalid("invalid network %s", p.Network)
	}

	switch req.Action {
	case keyvault.ActionNewUnprotectedKeyAndSign, keyvault.ActionNewKeyAndSign:
		if p.MessageHex == "" {
			return out, invalid("invalid messageHex %s", p.MessageHex)
		}
		if _, err := hex.DecodeString(p.MessageHex); err != nil {
			return out, invalid("invalid messageHex %s", p.MessageHex)
		}

	case keyvault.ActionShowKeyDetail:
		if p.ID == "" {
			return out, invalid("invalid id %s", p.ID)
		}

	case keyvault.ActionSignTx:
		if p.ID == "" {
			return out, invalid("invalid id %s", p.ID)
		}
		if len(p.Tx) == 0 || json.Unmarshal(p.Tx, &out.tx) != nil {
			return out, invalid("invalid tx %s", string(p.Tx))
		}
		if out.tx.Type == "" {
			return out, invalid("invalid tx type %s", out.tx.Type)
		}
	}
	return out, nil
}
