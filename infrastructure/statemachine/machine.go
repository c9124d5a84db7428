// Package statemachine provides the statekit integration for the execution loop.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/omni/domain/agent"
)

// TransitionFunc observes a completed transition.
type TransitionFunc func(from, to agent.State, reason string)

// Context carries loop state through the state machine.
type Context struct {
	// State is the run's agent state; the budget guard reads it.
	State *agent.AgentState
	// Current mirrors the interpreter's state value.
	Current agent.State
	// OnTransition is called after every accepted transition.
	OnTransition TransitionFunc
}

// NewContext creates a new machine context.
func NewContext(state *agent.AgentState, onTransition TransitionFunc) *Context {
	return &Context{
		State:        state,
		Current:      agent.StatePlanning,
		OnTransition: onTransition,
	}
}

// Event types understood by the loop machine.
const (
	EventPlanned statekit.EventType = "PLANNED"
	EventExecute statekit.EventType = "EXECUTE"
	EventObserve statekit.EventType = "OBSERVE"
	EventSelect  statekit.EventType = "SELECT"
	EventFinish  statekit.EventType = "FINISH"
	EventClarify statekit.EventType = "CLARIFY"
	EventExhaust statekit.EventType = "EXHAUST"
	EventFail    statekit.EventType = "FAIL"
)

const machineID = "omni-loop"

const (
	statePlanning   = statekit.StateID(agent.StatePlanning)
	stateSelecting  = statekit.StateID(agent.StateSelecting)
	stateExecuting  = statekit.StateID(agent.StateExecuting)
	stateObserving  = statekit.StateID(agent.StateObserving)
	stateClarifying = statekit.StateID(agent.StateClarifying)
	stateDone       = statekit.StateID(agent.StateDone)
	stateExhausted  = statekit.StateID(agent.StateExhausted)
	stateFatal      = statekit.StateID(agent.StateFatal)
)

// NewLoopMachine builds the execution loop statechart.
func NewLoopMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context](machineID).
		WithInitial(statePlanning).
		WithContext(&Context{}).
		WithAction("record", recordTransition).
		WithGuard("budgetAvailable", guardBudgetAvailable).
		State(statePlanning).
			On(EventPlanned).Target(stateSelecting).Do("record").
			On(EventFail).Target(stateFatal).Do("record").
			Done().
		State(stateSelecting).
			On(EventExecute).Target(stateExecuting).Do("record").
			On(EventSelect).Target(stateSelecting).Guard("budgetAvailable").Do("record").
			On(EventFinish).Target(stateDone).Do("record").
			On(EventClarify).Target(stateClarifying).Do("record").
			On(EventExhaust).Target(stateExhausted).Do("record").
			On(EventFail).Target(stateFatal).Do("record").
			Done().
		State(stateExecuting).
			On(EventObserve).Target(stateObserving).Do("record").
			On(EventFail).Target(stateFatal).Do("record").
			Done().
		State(stateObserving).
			On(EventSelect).Target(stateSelecting).Guard("budgetAvailable").Do("record").
			On(EventExhaust).Target(stateExhausted).Do("record").
			On(EventFail).Target(stateFatal).Do("record").
			Done().
		State(stateClarifying).
			On(EventSelect).Target(stateSelecting).Do("record").
			On(EventFail).Target(stateFatal).Do("record").
			Done().
		State(stateDone).
			Final().
			Done().
		State(stateExhausted).
			Final().
			Done().
		State(stateFatal).
			Final().
			Done().
		Build()
}

// EventFor returns the event that moves the loop from one state into another.
func EventFor(from, to agent.State) statekit.EventType {
	switch to {
	case agent.StateSelecting:
		if from == agent.StatePlanning {
			return EventPlanned
		}
		return EventSelect
	case agent.StateExecuting:
		return EventExecute
	case agent.StateObserving:
		return EventObserve
	case agent.StateClarifying:
		return EventClarify
	case agent.StateDone:
		return EventFinish
	case agent.StateExhausted:
		return EventExhaust
	case agent.StateFatal:
		return EventFail
	default:
		return statekit.EventType(to)
	}
}

// guardBudgetAvailable blocks re-entering SELECTING once the iteration
// budget is spent. Guards receive the context by value.
func guardBudgetAvailable(ctx *Context, _ statekit.Event) bool {
	if ctx == nil || ctx.State == nil {
		return true
	}
	return !ctx.State.BudgetExhausted()
}

// recordTransition syncs the mirrored state. Actions receive a pointer to
// the context.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if payload, ok := event.Payload.(TransitionPayload); ok {
		(*ctx).Current = payload.ToState
	}
}
