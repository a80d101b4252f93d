package keyvault

import (
	"encoding/json"
)

// ProtocolVersion is announced to the parent in the ready handshake.
const ProtocolVersion = "1.2.0"

// Message types exchanged with the parent.
const (
	MessageReady    = "ready"
	MessageRequest  = "request"
	MessageCallback = "callback"
	MessageAck      = "ack"
)

// Message is the single envelope for every frame on the parent channel.
//
//	child  -> parent  {type: ready, version, token}
//	parent -> child   {type: request, token, style, action, params}
//	child  -> parent  {type: callback, seq, error | result}
//	parent -> child   {type: ack, seq, error}
type Message struct {
	Type    string          `json:"type"`
	Version string          `json:"version,omitempty"`
	Token   string          `json:"token,omitempty"`
	Style   string          `json:"style,omitempty"`
	Action  Action          `json:"action,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Error   string          `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}
