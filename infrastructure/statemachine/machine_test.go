package statemachine

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/omni/domain/agent"
)

type transition struct {
	from, to agent.State
	reason   string
}

func newTestInterpreter(t *testing.T, budget int) (*Interpreter, *agent.AgentState, *[]transition) {
	t.Helper()

	machine, err := NewLoopMachine()
	if err != nil {
		t.Fatalf("NewLoopMachine() error = %v", err)
	}
	state, err := agent.NewAgentState("fix the bug", budget, agent.DefaultContextLimits())
	if err != nil {
		t.Fatalf("NewAgentState() error = %v", err)
	}

	var seen []transition
	ctx := NewContext(state, func(from, to agent.State, reason string) {
		seen = append(seen, transition{from, to, reason})
	})
	interp := NewInterpreter(machine, ctx)
	interp.Start()
	t.Cleanup(interp.Stop)
	return interp, state, &seen
}

func mustTransition(t *testing.T, interp *Interpreter, to agent.State) {
	t.Helper()
	if err := interp.Transition(to, ""); err != nil {
		t.Fatalf("Transition(%s) error = %v", to, err)
	}
}

func TestNewLoopMachine(t *testing.T) {
	t.Parallel()

	machine, err := NewLoopMachine()
	if err != nil {
		t.Fatalf("NewLoopMachine() error = %v", err)
	}
	if machine == nil {
		t.Fatal("NewLoopMachine() returned nil machine")
	}
}

func TestEventFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to agent.State
		want     string
	}{
		{agent.StatePlanning, agent.StateSelecting, "PLANNED"},
		{agent.StateObserving, agent.StateSelecting, "SELECT"},
		{agent.StateClarifying, agent.StateSelecting, "SELECT"},
		{agent.StateSelecting, agent.StateExecuting, "EXECUTE"},
		{agent.StateExecuting, agent.StateObserving, "OBSERVE"},
		{agent.StateSelecting, agent.StateClarifying, "CLARIFY"},
		{agent.StateSelecting, agent.StateDone, "FINISH"},
		{agent.StateObserving, agent.StateExhausted, "EXHAUST"},
		{agent.StatePlanning, agent.StateFatal, "FAIL"},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			if got := EventFor(tt.from, tt.to); string(got) != tt.want {
				t.Errorf("EventFor(%s, %s) = %s, want %s", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestInterpreter_Start(t *testing.T) {
	t.Parallel()

	interp, _, seen := newTestInterpreter(t, 5)

	if interp.State() != agent.StatePlanning {
		t.Errorf("State() = %s, want planning", interp.State())
	}
	if interp.Context().Current != agent.StatePlanning {
		t.Errorf("Context().Current = %s, want planning", interp.Context().Current)
	}
	if interp.IsTerminal() {
		t.Error("IsTerminal() = true after Start")
	}
	if len(*seen) != 0 {
		t.Errorf("observer saw %d transitions before any event", len(*seen))
	}
}

func TestInterpreter_FullCycle(t *testing.T) {
	t.Parallel()

	interp, _, seen := newTestInterpreter(t, 5)

	path := []agent.State{
		agent.StateSelecting,
		agent.StateExecuting,
		agent.StateObserving,
		agent.StateSelecting,
		agent.StateSelecting,
		agent.StateClarifying,
		agent.StateSelecting,
		agent.StateDone,
	}
	for _, to := range path {
		mustTransition(t, interp, to)
		if interp.State() != to {
			t.Fatalf("State() = %s, want %s", interp.State(), to)
		}
		if !interp.Matches(to) {
			t.Errorf("Matches(%s) = false", to)
		}
	}

	if !interp.IsTerminal() {
		t.Error("IsTerminal() = false in done")
	}
	if len(*seen) != len(path) {
		t.Fatalf("observer saw %d transitions, want %d", len(*seen), len(path))
	}
	first := (*seen)[0]
	if first.from != agent.StatePlanning || first.to != agent.StateSelecting {
		t.Errorf("first transition = %s -> %s, want planning -> selecting", first.from, first.to)
	}
}

func TestInterpreter_InvalidTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup []agent.State
		to    agent.State
	}{
		{"planning to executing", nil, agent.StateExecuting},
		{"planning to done", nil, agent.StateDone},
		{"executing to selecting", []agent.State{agent.StateSelecting, agent.StateExecuting}, agent.StateSelecting},
		{"observing to done", []agent.State{agent.StateSelecting, agent.StateExecuting, agent.StateObserving}, agent.StateDone},
		{"out of fatal", []agent.State{agent.StateFatal}, agent.StateSelecting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			interp, _, _ := newTestInterpreter(t, 5)
			for _, s := range tt.setup {
				mustTransition(t, interp, s)
			}
			before := interp.State()

			err := interp.Transition(tt.to, "")
			if !errors.Is(err, agent.ErrInvalidTransition) {
				t.Fatalf("Transition(%s) error = %v, want ErrInvalidTransition", tt.to, err)
			}
			if interp.State() != before {
				t.Errorf("State() = %s after rejected transition, want %s", interp.State(), before)
			}
		})
	}
}

func TestInterpreter_BudgetGuard(t *testing.T) {
	t.Parallel()

	interp, state, _ := newTestInterpreter(t, 1)

	mustTransition(t, interp, agent.StateSelecting)
	mustTransition(t, interp, agent.StateExecuting)
	mustTransition(t, interp, agent.StateObserving)
	if err := state.CompleteIteration(); err != nil {
		t.Fatalf("CompleteIteration() error = %v", err)
	}

	if interp.CanTransition(agent.StateSelecting) {
		t.Error("CanTransition(selecting) = true with the budget spent")
	}
	if err := interp.Transition(agent.StateSelecting, ""); !errors.Is(err, agent.ErrInvalidTransition) {
		t.Errorf("Transition(selecting) error = %v, want ErrInvalidTransition", err)
	}

	mustTransition(t, interp, agent.StateExhausted)
	if !interp.IsTerminal() {
		t.Error("IsTerminal() = false in exhausted")
	}
}

func TestInterpreter_ObserverReceivesReason(t *testing.T) {
	t.Parallel()

	interp, _, seen := newTestInterpreter(t, 3)

	if err := interp.Transition(agent.StateFatal, "planner failed twice"); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if len(*seen) != 1 || (*seen)[0].reason != "planner failed twice" {
		t.Errorf("observer saw %+v, want one transition with the reason", *seen)
	}
}
