// Package test holds fakes shared by the vault's package tests.
package test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/internal/artifact"
	"github.com/tinywideclouds/go-key-vault/internal/flow"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
	"github.com/tinywideclouds/go-key-vault/internal/storage/inmemory"
	"github.com/tinywideclouds/go-key-vault/internal/worker"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// ErrScriptExhausted is returned by ScriptedUI when a prompt has no scripted reply.
var ErrScriptExhausted = errors.New("no scripted reply left")

// ScriptedUI answers prompts from a fixed script and records everything shown.
type ScriptedUI struct {
	mu          sync.Mutex
	replies     []screen.Reply
	Prompts     []screen.Prompt
	Validations []string
	Loadings    []string
	Successes   []string
	Delays      []time.Duration
	Alerts      []string
	Messages    []string
	Lists       [][]keyvault.KeyEntry
	Welcomes    []bool
	Theme       *screen.Theme
}

// NewScriptedUI returns a UI that answers prompts with replies, in order.
func NewScriptedUI(replies ...screen.Reply) *ScriptedUI {
	return &ScriptedUI{replies: replies}
}

// OK is a convenience reply.
func OK(value string) screen.Reply {
	return screen.Reply{Choice: screen.OK, Value: value}
}

// Cancel is a convenience reply.
func Cancel() screen.Reply {
	return screen.Reply{Choice: screen.Cancel}
}

func (u *ScriptedUI) Prompt(ctx context.Context, p screen.Prompt) (screen.Reply, error) {
	u.mu.Lock()
	u.Prompts = append(u.Prompts, p)
	if len(u.replies) == 0 {
		u.mu.Unlock()
		return screen.Reply{}, ErrScriptExhausted
	}
	reply := u.replies[0]
	u.replies = u.replies[1:]
	u.mu.Unlock()

	// exercise live validation the way an interactive screen would
	if p.Validate != nil && reply.Value != "" {
		desc, err := p.Validate(ctx, reply.Value)
		u.mu.Lock()
		if err != nil {
			u.Validations = append(u.Validations, err.Error())
		} else {
			u.Validations = append(u.Validations, desc)
		}
		u.mu.Unlock()
	}
	return reply, nil
}

func (u *ScriptedUI) Loading(title, detail string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Loadings = append(u.Loadings, title)
}

func (u *ScriptedUI) Success(ctx context.Context, title, message string, delay time.Duration) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Successes = append(u.Successes, title)
	u.Delays = append(u.Delays, delay)
	return nil
}

func (u *ScriptedUI) Alert(message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Alerts = append(u.Alerts, message)
}

func (u *ScriptedUI) Message(text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Messages = append(u.Messages, text)
}

func (u *ScriptedUI) Welcome(hasKeys bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Welcomes = append(u.Welcomes, hasKeys)
}

func (u *ScriptedUI) KeyList(entries []keyvault.KeyEntry) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Lists = append(u.Lists, entries)
}

func (u *ScriptedUI) SetTheme(t screen.Theme) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Theme = &t
}

// PromptKinds lists the kinds of every prompt shown so far.
func (u *ScriptedUI) PromptKinds() []screen.Kind {
	u.mu.Lock()
	defer u.mu.Unlock()
	kinds := make([]screen.Kind, 0, len(u.Prompts))
	for _, p := range u.Prompts {
		kinds = append(kinds, p.Kind)
	}
	return kinds
}

// CommandLog records every worker command issued through a registry.
type CommandLog struct {
	mu       sync.Mutex
	commands []worker.Command
}

// Observe is a worker.Observer.
func (l *CommandLog) Observe(network string, cmd worker.Command, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, cmd)
}

// Commands returns the commands seen so far.
func (l *CommandLog) Commands() []worker.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]worker.Command(nil), l.commands...)
}

// Count returns how often cmd was issued.
func (l *CommandLog) Count(cmd worker.Command) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.commands {
		if c == cmd {
			n++
		}
	}
	return n
}

// Stores returns how many store commands were issued.
func (l *CommandLog) Stores() int {
	return l.Count(worker.CmdStoreUnprotectedKey) + l.Count(worker.CmdStoreProtectedKey)
}

// CallbackCall is one invocation of a RecordingCallback.
type CallbackCall struct {
	Err    error
	Result any
}

// RecordingCallback records invocations and fails the first Failures of them.
type RecordingCallback struct {
	mu       sync.Mutex
	Failures int
	FailWith error
	calls    []CallbackCall
}

func (c *RecordingCallback) Invoke(ctx context.Context, err error, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, CallbackCall{Err: err, Result: result})
	if len(c.calls) <= c.Failures {
		if c.FailWith != nil {
			return c.FailWith
		}
		return errors.New("parent unavailable")
	}
	return nil
}

// Calls returns the recorded invocations.
func (c *RecordingCallback) Calls() []CallbackCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CallbackCall(nil), c.calls...)
}

// Vault bundles an in-memory store, a registry and a scripted UI.
type Vault struct {
	Store    *inmemory.Store
	Registry *worker.Registry
	UI       *ScriptedUI
	Log      *CommandLog
	Env      flow.Env
}

// BackupPublicKey returns the public half of a throwaway SMS backup key pair.
func BackupPublicKey() string {
	pub, _, err := artifact.NewBackupKeyPair()
	if err != nil {
		panic(err)
	}
	return pub
}

// NewVault assembles a flow.Env around an in-memory store. The caller closes
// the registry.
func NewVault(ui *ScriptedUI) (*Vault, error) {
	backup, err := artifact.NewBackupSealer(BackupPublicKey())
	if err != nil {
		return nil, err
	}
	store := inmemory.New()
	log := &CommandLog{}
	registry := worker.NewRegistry(store, zerolog.Nop(), worker.WithObserver(log.Observe))
	return &Vault{
		Store:    store,
		Registry: registry,
		UI:       ui,
		Log:      log,
		Env: flow.Env{
			Registry: registry,
			UI:       ui,
			Renderer: artifact.QRRenderer{Size: 64},
			Backup:   backup,
			Logger:   zerolog.Nop(),
		},
	}, nil
}
