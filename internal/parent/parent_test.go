package parent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-key-vault/internal/parent"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// fakeParent runs script against the first vault that connects.
func fakeParent(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func setupSuite(t *testing.T) (context.Context, *parent.Tokens) {
	t.Helper()
	tokens, err := parent.NewTokens(parent.DefaultTokenTTL)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx, tokens
}

func TestParent_Handshake(t *testing.T) {
	t.Run("Success - ready, request, acknowledged callbacks", func(t *testing.T) {
		// Arrange
		ctx, tokens := setupSuite(t)
		received := make(chan keyvault.Message, 4)
		server := fakeParent(t, func(conn *websocket.Conn) {
			var ready keyvault.Message
			if conn.ReadJSON(&ready) != nil {
				return
			}
			received <- ready
			_ = conn.WriteJSON(keyvault.Message{
				Type:   keyvault.MessageRequest,
				Token:  ready.Token,
				Style:  "EQH",
				Action: keyvault.ActionShowKeyDetail,
				Params: json.RawMessage(`{"platform":"EQH","network":"Main","id":"EQH-1"}`),
			})
			for i := 0; i < 2; i++ {
				var cb keyvault.Message
				if conn.ReadJSON(&cb) != nil {
					return
				}
				received <- cb
				ack := keyvault.Message{Type: keyvault.MessageAck, Seq: cb.Seq}
				if i == 1 {
					ack.Error = "main app rejected result"
				}
				_ = conn.WriteJSON(ack)
			}
		})

		// Act
		p, err := parent.Dial(ctx, wsURL(server), []string{server.URL}, tokens, zerolog.Nop())
		require.NoError(t, err)
		defer p.Close()
		require.NoError(t, p.SendReady(ctx))
		req, err := p.AwaitRequest(ctx)
		require.NoError(t, err)

		// Assert
		ready := <-received
		assert.Equal(t, keyvault.MessageReady, ready.Type)
		assert.Equal(t, keyvault.ProtocolVersion, ready.Version)
		assert.NotEmpty(t, ready.Token)

		assert.Equal(t, keyvault.ActionShowKeyDetail, req.Action)
		assert.Equal(t, "EQH", req.Style)
		assert.JSONEq(t, `{"platform":"EQH","network":"Main","id":"EQH-1"}`, string(req.Params))

		err = req.Callback.Invoke(ctx, nil, keyvault.KeyState{HasKeyPair: true})
		require.NoError(t, err)
		first := <-received
		assert.Equal(t, uint64(1), first.Seq)
		assert.JSONEq(t, `{"hasKeyPair":true,"hasPassphrase":false}`, string(first.Result))

		err = req.Callback.Invoke(ctx, keyvault.ErrCancelled, nil)
		assert.EqualError(t, err, "main app rejected result")
		second := <-received
		assert.Equal(t, "cancelled by user", second.Error)
		assert.Empty(t, second.Result)
	})

	t.Run("Failure - request with a forged token", func(t *testing.T) {
		ctx, tokens := setupSuite(t)
		server := fakeParent(t, func(conn *websocket.Conn) {
			var ready keyvault.Message
			if conn.ReadJSON(&ready) != nil {
				return
			}
			_ = conn.WriteJSON(keyvault.Message{Type: keyvault.MessageRequest, Token: "forged", Action: keyvault.ActionSignTx})
			_, _, _ = conn.ReadMessage()
		})

		p, err := parent.Dial(ctx, wsURL(server), []string{"*"}, tokens, zerolog.Nop())
		require.NoError(t, err)
		defer p.Close()
		require.NoError(t, p.SendReady(ctx))

		_, err = p.AwaitRequest(ctx)
		assert.ErrorIs(t, err, parent.ErrBadToken)
	})

	t.Run("Success - repeated acks do not stall later callbacks", func(t *testing.T) {
		// Arrange
		ctx, tokens := setupSuite(t)
		server := fakeParent(t, func(conn *websocket.Conn) {
			var ready keyvault.Message
			if conn.ReadJSON(&ready) != nil {
				return
			}
			_ = conn.WriteJSON(keyvault.Message{Type: keyvault.MessageRequest, Token: ready.Token, Action: keyvault.ActionSignTx})
			for i := 0; i < 2; i++ {
				var cb keyvault.Message
				if conn.ReadJSON(&cb) != nil {
					return
				}
				repeats := 1
				if i == 0 {
					repeats = 3
				}
				for j := 0; j < repeats; j++ {
					_ = conn.WriteJSON(keyvault.Message{Type: keyvault.MessageAck, Seq: cb.Seq})
				}
			}
			_, _, _ = conn.ReadMessage()
		})
		p, err := parent.Dial(ctx, wsURL(server), []string{server.URL}, tokens, zerolog.Nop())
		require.NoError(t, err)
		defer p.Close()
		require.NoError(t, p.SendReady(ctx))
		req, err := p.AwaitRequest(ctx)
		require.NoError(t, err)

		// Act
		firstErr := req.Callback.Invoke(ctx, nil, keyvault.KeyState{HasKeyPair: true})
		callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		secondErr := req.Callback.Invoke(callCtx, nil, keyvault.KeyState{HasKeyPair: true, HasPassphrase: true})

		// Assert
		assert.NoError(t, firstErr)
		assert.NoError(t, secondErr)
	})

	t.Run("Failure - parent hangs up", func(t *testing.T) {
		ctx, tokens := setupSuite(t)
		server := fakeParent(t, func(conn *websocket.Conn) {})

		p, err := parent.Dial(ctx, wsURL(server), []string{"*"}, tokens, zerolog.Nop())
		require.NoError(t, err)
		defer p.Close()

		_, err = p.AwaitRequest(ctx)
		assert.ErrorIs(t, err, parent.ErrDisconnected)
	})

	t.Run("Failure - origin not on the allow-list", func(t *testing.T) {
		ctx, tokens := setupSuite(t)

		_, err := parent.Dial(ctx, "wss://evil.example.com/vault", []string{"https://app.example.com"}, tokens, zerolog.Nop())
		assert.ErrorIs(t, err, parent.ErrOriginNotAllowed)
	})
}

func TestOrigin(t *testing.T) {
	origin, err := parent.Origin("wss://app.example.com:8443/vault?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com:8443", origin)

	assert.True(t, parent.OriginAllowed(origin, []string{"https://APP.example.com:8443/"}))
	assert.False(t, parent.OriginAllowed(origin, []string{"https://app.example.com"}))

	_, err = parent.Origin("not a url")
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tokens, err := parent.NewTokensWithSecret(secret, time.Minute, clock)
	require.NoError(t, err)
	const origin = "https://app.example.com"

	t.Run("Success - fresh token for the same origin", func(t *testing.T) {
		raw, err := tokens.Issue(origin)
		require.NoError(t, err)
		assert.NoError(t, tokens.Verify(raw, origin))
	})

	t.Run("Failure - other origin", func(t *testing.T) {
		raw, err := tokens.Issue(origin)
		require.NoError(t, err)
		assert.ErrorIs(t, tokens.Verify(raw, "https://other.example.com"), parent.ErrBadToken)
	})

	t.Run("Failure - superseded token", func(t *testing.T) {
		old, err := tokens.Issue(origin)
		require.NoError(t, err)
		_, err = tokens.Issue(origin)
		require.NoError(t, err)
		assert.ErrorIs(t, tokens.Verify(old, origin), parent.ErrBadToken)
	})

	t.Run("Failure - expired token", func(t *testing.T) {
		raw, err := tokens.Issue(origin)
		require.NoError(t, err)
		later, err := parent.NewTokensWithSecret(secret, time.Minute, func() time.Time { return now.Add(time.Hour) })
		require.NoError(t, err)
		assert.ErrorIs(t, later.Verify(raw, origin), parent.ErrBadToken)
	})

	t.Run("Failure - other secret", func(t *testing.T) {
		other, err := parent.NewTokens(time.Minute)
		require.NoError(t, err)
		raw, err := other.Issue(origin)
		require.NoError(t, err)
		assert.ErrorIs(t, tokens.Verify(raw, origin), parent.ErrBadToken)
	})
}
