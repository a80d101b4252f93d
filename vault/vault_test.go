package vault_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-key-vault/internal/artifact"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
	"github.com/tinywideclouds/go-key-vault/internal/storage/inmemory"
	"github.com/tinywideclouds/go-key-vault/pkg/keystore"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
	"github.com/tinywideclouds/go-key-vault/test"
	"github.com/tinywideclouds/go-key-vault/vault"
	"github.com/tinywideclouds/go-key-vault/vault/config"
)

const restorePassphrase = "eqh abandon ability able about above absent absorb abstract absurd abuse"

func newConfig(allowed ...string) *config.Config {
	return &config.Config{
		RunMode:         "test",
		BackupPublicKey: test.BackupPublicKey(),
		Store:           config.StoreConfig{Backend: config.BackendMemory},
		Parent:          config.ParentConfig{AllowedOrigins: allowed, TokenTTL: time.Minute},
		Themes:          map[string]screen.ThemeConfig{},
	}
}

func setupSuite(t *testing.T, cfg *config.Config, replies ...screen.Reply) (context.Context, *vault.Context, *inmemory.Store, *test.ScriptedUI) {
	t.Helper()
	store := inmemory.New()
	ui := test.NewScriptedUI(replies...)
	v, err := vault.New(cfg, store, ui, zerolog.Nop(),
		vault.WithRenderer(artifact.QRRenderer{Size: 64}),
		vault.WithCloseDelay(time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(v.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx, v, store, ui
}

// scriptedParent answers the ready message with one request built by makeReq
// and acknowledges every callback, forwarding it to callbacks.
func scriptedParent(t *testing.T, makeReq func(token string) keyvault.Message, callbacks chan<- keyvault.Message) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var ready keyvault.Message
		if conn.ReadJSON(&ready) != nil {
			return
		}
		if conn.WriteJSON(makeReq(ready.Token)) != nil {
			return
		}
		for {
			var cb keyvault.Message
			if conn.ReadJSON(&cb) != nil {
				close(callbacks)
				return
			}
			callbacks <- cb
			_ = conn.WriteJSON(keyvault.Message{Type: keyvault.MessageAck, Seq: cb.Seq})
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestRunChild(t *testing.T) {
	t.Run("Success - newKeyAndSign end to end", func(t *testing.T) {
		// Arrange
		callbacks := make(chan keyvault.Message, 8)
		server := scriptedParent(t, func(token string) keyvault.Message {
			return keyvault.Message{
				Type:   keyvault.MessageRequest,
				Token:  token,
				Style:  "eqh",
				Action: keyvault.ActionNewKeyAndSign,
				Params: json.RawMessage(`{"platform":"EQH","network":"Main","messageHex":"deadbeef"}`),
			}
		}, callbacks)
		ctx, v, store, ui := setupSuite(t, newConfig(server.URL), test.OK(""), test.OK(""), test.OK("1234"))

		// Act
		err := v.RunChild(ctx, wsURL(server))

		// Assert
		require.NoError(t, err)
		cb := <-callbacks
		assert.Empty(t, cb.Error)
		var result keyvault.NewKeyResult
		require.NoError(t, json.Unmarshal(cb.Result, &result))
		assert.NotEmpty(t, result.Address)
		assert.NotEmpty(t, result.Signature)

		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].HasPinProtection)
		require.NotNil(t, ui.Theme)
		assert.Equal(t, "eqh", ui.Theme.Name)
		assert.Equal(t, []bool{false}, ui.Welcomes)
	})

	t.Run("Failure - parent origin not allowed", func(t *testing.T) {
		ctx, v, _, ui := setupSuite(t, newConfig("https://app.example.com"))

		err := v.RunChild(ctx, "ws://127.0.0.1:1/vault")

		require.Error(t, err)
		require.Len(t, ui.Messages, 1)
		assert.True(t, strings.HasPrefix(ui.Messages[0], "Problem with command sent from the main app. "))
		assert.Contains(t, ui.Messages[0], "parent origin not allowed")
	})

	t.Run("Failure - unknown style", func(t *testing.T) {
		callbacks := make(chan keyvault.Message, 8)
		server := scriptedParent(t, func(token string) keyvault.Message {
			return keyvault.Message{Type: keyvault.MessageRequest, Token: token, Style: "neon",
				Action: keyvault.ActionShowKeyDetail, Params: json.RawMessage(`{}`)}
		}, callbacks)
		ctx, v, _, ui := setupSuite(t, newConfig("*"))

		err := v.RunChild(ctx, wsURL(server))

		assert.ErrorContains(t, err, `unknown style "neon"`)
		require.Len(t, ui.Messages, 1)
		assert.Contains(t, ui.Messages[0], "Problem with command sent from the main app.")
	})

	t.Run("Failure - unknown action", func(t *testing.T) {
		callbacks := make(chan keyvault.Message, 8)
		server := scriptedParent(t, func(token string) keyvault.Message {
			return keyvault.Message{Type: keyvault.MessageRequest, Token: token,
				Action: "exportKeys", Params: json.RawMessage(`{}`)}
		}, callbacks)
		ctx, v, _, ui := setupSuite(t, newConfig("*"))

		err := v.RunChild(ctx, wsURL(server))

		assert.ErrorIs(t, err, keyvault.ErrUnknownAction)
		require.Len(t, ui.Messages, 1)
		assert.Contains(t, ui.Messages[0], "received unknown action from parent window")
	})

	t.Run("Failure - validation error goes to the parent, not the screen", func(t *testing.T) {
		callbacks := make(chan keyvault.Message, 8)
		server := scriptedParent(t, func(token string) keyvault.Message {
			return keyvault.Message{Type: keyvault.MessageRequest, Token: token,
				Action: keyvault.ActionSignTx, Params: json.RawMessage(`{"platform":"EQH","network":"Main"}`)}
		}, callbacks)
		ctx, v, _, ui := setupSuite(t, newConfig("*"))

		err := v.RunChild(ctx, wsURL(server))

		assert.ErrorIs(t, err, keyvault.ErrValidation)
		cb := <-callbacks
		assert.Contains(t, cb.Error, "invalid id")
		assert.Empty(t, ui.Messages)
	})
}

// scriptedMenu feeds menu lines and then reports end of input.
type scriptedMenu struct {
	lines []string
}

func (m *scriptedMenu) ReadLine(label string) (string, error) {
	if len(m.lines) == 0 {
		return "", io.EOF
	}
	line := m.lines[0]
	m.lines = m.lines[1:]
	return line, nil
}

func TestRunDirect(t *testing.T) {
	t.Run("Success - add a key and show it", func(t *testing.T) {
		// Arrange
		ctx, v, store, ui := setupSuite(t, newConfig(),
			screen.Reply{Choice: screen.OK, Value: screen.AddRestore, Platform: "EQH", Network: "Main"},
			test.OK(restorePassphrase),
			test.OK(""),
		)
		menu := &scriptedMenu{lines: []string{"add", "list", "detail 1", "quit"}}

		// Act
		err := v.RunDirect(ctx, menu)

		// Assert
		require.NoError(t, err)
		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, []screen.Kind{screen.KindAddKey, screen.KindRestore, screen.KindKeyDetail}, ui.PromptKinds())
		assert.Equal(t, entries[0].Address, ui.Prompts[2].Detail.Address)
		assert.Equal(t, []string{"Key Added"}, ui.Successes)
		assert.Empty(t, ui.Alerts)
	})

	t.Run("Success - generate a protected key", func(t *testing.T) {
		// Arrange
		ctx, v, store, ui := setupSuite(t, newConfig(),
			screen.Reply{Choice: screen.OK, Value: screen.AddGenerate, Platform: "EQH", Network: "Main"},
			test.OK(""),
			test.OK(""),
			test.OK("2468"),
		)
		menu := &scriptedMenu{lines: []string{"add", "quit"}}

		// Act
		err := v.RunDirect(ctx, menu)

		// Assert
		require.NoError(t, err)
		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].HasPinProtection)
		assert.Equal(t, "EQH", entries[0].Platform)
		assert.Equal(t, []screen.Kind{screen.KindAddKey, screen.KindPassphraseDisplay, screen.KindPassphraseConfirm, screen.KindPIN}, ui.PromptKinds())
		assert.Equal(t, []string{"Key Created"}, ui.Successes)
		assert.Empty(t, ui.Alerts)
	})

	t.Run("Success - cancelling is silent and returns to welcome", func(t *testing.T) {
		ctx, v, _, ui := setupSuite(t, newConfig(), test.Cancel())
		menu := &scriptedMenu{lines: []string{"add"}}

		err := v.RunDirect(ctx, menu)

		require.NoError(t, err)
		assert.Empty(t, ui.Alerts)
		assert.Equal(t, []bool{false, false}, ui.Welcomes)
	})

	t.Run("Failure - unknown key number alerts", func(t *testing.T) {
		ctx, v, _, ui := setupSuite(t, newConfig())
		menu := &scriptedMenu{lines: []string{"detail 3"}}

		err := v.RunDirect(ctx, menu)

		require.NoError(t, err)
		require.Len(t, ui.Alerts, 1)
		assert.Contains(t, ui.Alerts[0], "No key number")
	})
}

func TestListing(t *testing.T) {
	store := inmemory.New()
	require.NoError(t, store.Put(context.Background(), keyvault.Record{
		Entry: keyvault.KeyEntry{ID: "EQH-1", Platform: "EQH", Network: "Main", Address: "addr-1"},
	}))
	listing := vault.NewListing("127.0.0.1:0", keystore.ReadOnly(store), nil, zerolog.Nop())
	require.NoError(t, listing.Start())
	t.Cleanup(func() { _ = listing.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + listing.Addr() + "/keys/EQH-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var entry keyvault.KeyEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	assert.Equal(t, "addr-1", entry.Address)
}
