// Package parent is the vault's side of the channel to the application that
// opened it. The vault dials the parent over a websocket, announces itself
// with a signed token, serves exactly one request and reports results through
// acknowledged callback messages.
package parent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

var (
	// ErrOriginNotAllowed is returned when the parent URL is not on the allow-list.
	ErrOriginNotAllowed = errors.New("parent origin not allowed")
	// ErrDisconnected is returned when the parent connection is gone.
	ErrDisconnected = errors.New("parent disconnected")
)

const writeTimeout = 10 * time.Second

// Parent is one open connection to a parent context. It implements
// keyvault.Callback for the request it delivers.
type Parent struct {
	conn   *websocket.Conn
	origin string
	tokens *Tokens
	logger zerolog.Logger

	writeMu sync.Mutex
	seq     atomic.Uint64

	acksMu sync.Mutex
	acks   map[uint64]chan keyvault.Message

	requests chan keyvault.Message
	received atomic.Bool

	done    chan struct{}
	readErr error
}

// Origin returns the scheme://host form of a parent URL, mapping websocket
// schemes to their http equivalents.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid parent url: %w", err)
	}
	scheme := u.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	if scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid parent url %q", rawURL)
	}
	return scheme + "://" + u.Host, nil
}

// OriginAllowed reports whether origin matches the allow-list. "*" allows any.
func OriginAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
			return true
		}
	}
	return false
}

// Dial checks the parent's origin and connects to it.
func Dial(ctx context.Context, rawURL string, allowed []string, tokens *Tokens, logger zerolog.Logger) (*Parent, error) {
	origin, err := Origin(rawURL)
	if err != nil {
		return nil, err
	}
	if !OriginAllowed(origin, allowed) {
		return nil, fmt.Errorf("%w: %s", ErrOriginNotAllowed, origin)
	}

	dialer := websocket.Dialer{HandshakeTimeout: writeTimeout}
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to parent: %w", err)
	}

	p := &Parent{
		conn:     conn,
		origin:   origin,
		tokens:   tokens,
		logger:   logger.With().Str("component", "parent").Str("origin", origin).Logger(),
		acks:     make(map[uint64]chan keyvault.Message),
		requests: make(chan keyvault.Message, 1),
		done:     make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

// SendReady announces the vault and its handshake token.
func (p *Parent) SendReady(ctx context.Context) error {
	token, err := p.tokens.Issue(p.origin)
	if err != nil {
		return err
	}
	return p.write(keyvault.Message{
		Type:    keyvault.MessageReady,
		Version: keyvault.ProtocolVersion,
		Token:   token,
	})
}

// AwaitRequest blocks until the parent sends its request, and verifies that
// the request echoes the handshake token. Only the first request is served.
func (p *Parent) AwaitRequest(ctx context.Context) (keyvault.ActionRequest, error) {
	select {
	case <-ctx.Done():
		return keyvault.ActionRequest{}, ctx.Err()
	case <-p.done:
		return keyvault.ActionRequest{}, p.disconnected()
	case m := <-p.requests:
		if err := p.tokens.Verify(m.Token, p.origin); err != nil {
			return keyvault.ActionRequest{}, err
		}
		p.logger.Info().Str("action", string(m.Action)).Msg("Received parent request")
		return keyvault.ActionRequest{
			Style:    m.Style,
			Action:   m.Action,
			Params:   m.Params,
			Callback: p,
		}, nil
	}
}

// Invoke sends a callback message and waits for the parent's ack. An ack
// carrying an error counts as a failed invocation.
func (p *Parent) Invoke(ctx context.Context, flowErr error, result any) error {
	msg := keyvault.Message{Type: keyvault.MessageCallback, Seq: p.seq.Add(1)}
	if flowErr != nil {
		msg.Error = flowErr.Error()
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode callback result: %w", err)
		}
		msg.Result = raw
	}

	ack := make(chan keyvault.Message, 1)
	p.acksMu.Lock()
	p.acks[msg.Seq] = ack
	p.acksMu.Unlock()
	defer func() {
		p.acksMu.Lock()
		delete(p.acks, msg.Seq)
		p.acksMu.Unlock()
	}()

	if err := p.write(msg); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return p.disconnected()
	case m := <-ack:
		if m.Error != "" {
			return errors.New(m.Error)
		}
		return nil
	}
}

// Close ends the connection.
func (p *Parent) Close() error {
	p.writeMu.Lock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "vault closed"),
		time.Now().Add(time.Second))
	p.writeMu.Unlock()
	return p.conn.Close()
}

func (p *Parent) write(m keyvault.Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := p.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("failed to send %s message: %w", m.Type, err)
	}
	return nil
}

func (p *Parent) readLoop() {
	defer close(p.done)
	for {
		var m keyvault.Message
		if err := p.conn.ReadJSON(&m); err != nil {
			p.readErr = err
			return
		}
		switch m.Type {
		case keyvault.MessageRequest:
			if !p.received.CompareAndSwap(false, true) {
				p.logger.Warn().Msg("Ignoring additional parent request")
				continue
			}
			p.requests <- m
		case keyvault.MessageAck:
			p.acksMu.Lock()
			ack, ok := p.acks[m.Seq]
			p.acksMu.Unlock()
			if !ok {
				p.logger.Warn().Uint64("seq", m.Seq).Msg("Ack for unknown callback")
				continue
			}
			select {
			case ack <- m:
			default:
				p.logger.Warn().Uint64("seq", m.Seq).Msg("Duplicate ack")
			}
		default:
			p.logger.Warn().Str("type", m.Type).Msg("Ignoring unexpected parent message")
		}
	}
}

func (p *Parent) disconnected() error {
	if p.readErr != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, p.readErr)
	}
	return ErrDisconnected
}
