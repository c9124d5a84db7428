package statemachine

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/omni/domain/agent"
)

// TransitionPayload carries additional data with a transition event.
type TransitionPayload struct {
	ToState agent.State
	Reason  string
}

// Interpreter wraps the statekit interpreter for one run.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates an interpreter bound to ctx.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{interp: interp, ctx: ctx}
}

// Start enters the initial state.
func (i *Interpreter) Start() {
	i.interp.Start()
	i.ctx.Current = agent.State(i.interp.State().Value)
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// State returns the current state.
func (i *Interpreter) State() agent.State {
	return agent.State(i.interp.State().Value)
}

// CanTransition reports whether the loop may move to the target state now.
func (i *Interpreter) CanTransition(to agent.State) bool {
	from := i.State()
	if !agent.CanTransition(from, to) {
		return false
	}
	if to == agent.StateSelecting && from != agent.StatePlanning && from != agent.StateClarifying {
		return guardBudgetAvailable(i.ctx, statekit.Event{})
	}
	return true
}

// Transition moves the loop to the target state and notifies the observer.
func (i *Interpreter) Transition(to agent.State, reason string) error {
	from := i.State()
	if !i.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", agent.ErrInvalidTransition, from, to)
	}

	i.interp.Send(statekit.Event{
		Type:    EventFor(from, to),
		Payload: TransitionPayload{ToState: to, Reason: reason},
	})

	if got := i.State(); got != to {
		return fmt.Errorf("%w: %s -> %s rejected in %s", agent.ErrInvalidTransition, from, to, got)
	}
	i.ctx.Current = to
	if i.ctx.OnTransition != nil {
		i.ctx.OnTransition(from, to, reason)
	}
	return nil
}

// IsTerminal returns true if the interpreter is in a final state.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Matches checks if the current state matches the given state.
func (i *Interpreter) Matches(state agent.State) bool {
	return i.interp.Matches(statekit.StateID(state))
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}
