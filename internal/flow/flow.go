// Package flow implements the key lifecycle operations of a vault context as
// explicit state machines. Each flow owns a state, and every step performs one
// side effect (a worker call or a prompt) and moves to the next state. Flows
// never run steps concurrently and never touch key material directly.
package flow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/internal/artifact"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
	"github.com/tinywideclouds/go-key-vault/internal/worker"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// State names a step of a flow.
type State string

// Shared terminal state.
const Done State = "done"

// Env is what every flow needs from its context.
type Env struct {
	Registry *worker.Registry
	UI       screen.UI
	Renderer artifact.Renderer
	Backup   *artifact.BackupSealer
	Logger   zerolog.Logger
}

// Reporter receives intermediate results.
type Reporter interface {
	Report(ctx context.Context, result any)
}

// machine is the bookkeeping shared by all flows.
type machine struct {
	name   string
	state  State
	trace  []State
	logger zerolog.Logger
}

func newMachine(name string, start State, logger zerolog.Logger) machine {
	return machine{
		name:   name,
		state:  start,
		trace:  []State{start},
		logger: logger.With().Str("flow", name).Logger(),
	}
}

func (m *machine) enter(next State) {
	m.logger.Debug().Str("from", string(m.state)).Str("to", string(next)).Msg("Flow transition")
	m.state = next
	m.trace = append(m.trace, next)
}

// Trace returns every state the flow has entered, in order.
func (m *machine) Trace() []State {
	return append([]State(nil), m.trace...)
}

// run drives step until the machine reaches Done or a step fails.
func (m *machine) run(ctx context.Context, step func(context.Context) error) error {
	for m.state != Done {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx); err != nil {
			m.logger.Debug().Err(err).Str("state", string(m.state)).Msg("Flow stopped")
			return err
		}
	}
	return nil
}

func (m *machine) unknown() error {
	return fmt.Errorf("%s: no transition from state %q", m.name, m.state)
}

// prompt presents p and turns any choice other than ok into a cancellation.
func prompt(ctx context.Context, ui screen.UI, p screen.Prompt) (screen.Reply, error) {
	reply, err := ui.Prompt(ctx, p)
	if err != nil {
		return screen.Reply{}, err
	}
	if reply.Choice != screen.OK {
		return reply, keyvault.ErrCancelled
	}
	return reply, nil
}
