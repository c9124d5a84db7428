// Package agent provides the core domain model for the adaptive execution loop.
package agent

// State is a node of the execution loop's state machine.
// States are identified by stable strings.
type State string

// Loop states.
const (
	StatePlanning   State = "planning"   // Build the plan
	StateSelecting  State = "selecting"  // Choose next action
	StateExecuting  State = "executing"  // Dispatch a tool
	StateObserving  State = "observing"  // Record the result
	StateClarifying State = "clarifying" // Waiting for the user
	StateDone       State = "done"       // Terminal success
	StateExhausted  State = "exhausted"  // Terminal, budget spent
	StateFatal      State = "fatal"      // Terminal, never meaningfully started or infrastructure fault
)

// IsTerminal returns true for done, exhausted and fatal.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateExhausted || s == StateFatal
}

// IsSuspended returns true when the loop has handed control back to the caller
// and can be resumed.
func (s State) IsSuspended() bool {
	return s == StateClarifying
}

// IsValid returns true if the state is a recognized loop state.
func (s State) IsValid() bool {
	switch s {
	case StatePlanning, StateSelecting, StateExecuting, StateObserving,
		StateClarifying, StateDone, StateExhausted, StateFatal:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// transitions lists the allowed edges of the loop.
var transitions = map[State][]State{
	StatePlanning:   {StateSelecting, StateFatal},
	StateSelecting:  {StateExecuting, StateSelecting, StateDone, StateClarifying, StateExhausted, StateFatal},
	StateExecuting:  {StateObserving, StateFatal},
	StateObserving:  {StateSelecting, StateExhausted, StateFatal},
	StateClarifying: {StateSelecting, StateFatal},
}

// CanTransition reports whether the loop may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllStates returns all loop states.
func AllStates() []State {
	return []State{
		StatePlanning,
		StateSelecting,
		StateExecuting,
		StateObserving,
		StateClarifying,
		StateDone,
		StateExhausted,
		StateFatal,
	}
}

// TerminalStates returns all terminal states.
func TerminalStates() []State {
	return []State{StateDone, StateExhausted, StateFatal}
}
