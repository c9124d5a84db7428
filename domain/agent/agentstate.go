package agent

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/omni/domain/tool"
)

// ActionRecord pairs a tool invocation with the result it produced.
type ActionRecord struct {
	Invocation tool.Invocation `json:"invocation"`
	Result     tool.Result     `json:"result"`
	Iteration  int             `json:"iteration"`

	// Synthetic is true when no tool ran (malformed decision, unknown tool,
	// selector failure).
	Synthetic bool `json:"synthetic,omitempty"`
}

// Failed returns true when the recorded result is a failure.
func (a ActionRecord) Failed() bool {
	return a.Result.IsFailure()
}

// AgentState is the mutable record of one goal's execution. It is owned by
// the orchestrator; collaborators only ever see a Snapshot.
type AgentState struct {
	goal           string
	plan           *Plan
	context        *WorkingContext
	last           *ActionRecord
	iterations     int
	maxIterations  int
	clarifications int
}

// NewAgentState creates the state for a goal with an empty plan.
func NewAgentState(goal string, maxIterations int, limits ContextLimits) (*AgentState, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, ErrEmptyGoal
	}
	if maxIterations <= 0 {
		return nil, fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidBudget, maxIterations)
	}
	return &AgentState{
		goal:          goal,
		context:       NewWorkingContext(limits),
		maxIterations: maxIterations,
	}, nil
}

// Goal returns the immutable goal text.
func (s *AgentState) Goal() string {
	return s.goal
}

// Plan returns a copy of the plan, or nil before planning.
func (s *AgentState) Plan() *Plan {
	return s.plan.clone()
}

// SetPlan installs the plan. It may only be called once.
func (s *AgentState) SetPlan(p *Plan) error {
	if s.plan != nil {
		return ErrPlanAlreadySet
	}
	if p.Len() == 0 {
		return ErrEmptyPlan
	}
	s.plan = p.clone()
	return nil
}

// Iterations returns the number of completed iterations.
func (s *AgentState) Iterations() int {
	return s.iterations
}

// MaxIterations returns the iteration budget.
func (s *AgentState) MaxIterations() int {
	return s.maxIterations
}

// CurrentIteration returns the 1-based index of the iteration in progress.
func (s *AgentState) CurrentIteration() int {
	return s.iterations + 1
}

// BudgetExhausted returns true once the iteration budget is spent.
func (s *AgentState) BudgetExhausted() bool {
	return s.iterations >= s.maxIterations
}

// CompleteIteration counts one finished iteration.
func (s *AgentState) CompleteIteration() error {
	if s.BudgetExhausted() {
		return ErrBudgetExhausted
	}
	s.iterations++
	return nil
}

// LastAction returns the most recent action record.
func (s *AgentState) LastAction() (ActionRecord, bool) {
	if s.last == nil {
		return ActionRecord{}, false
	}
	return *s.last, true
}

// RecordResult stores the outcome of the current iteration. Only a success
// writes its output into the working context, under "<tool>#<iteration>".
func (s *AgentState) RecordResult(inv tool.Invocation, result tool.Result) error {
	return s.record(inv, result, false)
}

// RecordSynthetic stores a failure that was produced without running a tool.
func (s *AgentState) RecordSynthetic(inv tool.Invocation, errText string) error {
	return s.record(inv, tool.Failure(errText), true)
}

func (s *AgentState) record(inv tool.Invocation, result tool.Result, synthetic bool) error {
	if !result.IsValid() {
		return tool.ErrInvalidResult
	}
	iteration := s.CurrentIteration()
	s.last = &ActionRecord{
		Invocation: cloneInvocation(inv),
		Result:     result,
		Iteration:  iteration,
		Synthetic:  synthetic,
	}
	if result.IsSuccess() {
		s.context.Set(ContextKey(inv.Tool, iteration), result.Output())
	}
	return nil
}

// ActivateStep marks the attributed step active for the duration of a tool call.
func (s *AgentState) ActivateStep(id string) error {
	if s.plan == nil {
		return ErrStepNotFound
	}
	return s.plan.activate(id)
}

// ReleaseStep returns an active step to pending, leaving the plan as it was.
func (s *AgentState) ReleaseStep(id string) {
	if s.plan != nil {
		s.plan.release(id)
	}
}

// MarkStepDone marks a step done. It is the only path to StepDone.
func (s *AgentState) MarkStepDone(id string) error {
	if s.plan == nil {
		return ErrStepNotFound
	}
	return s.plan.markDone(id)
}

// AddClarification appends the user's answer to a clarification question.
func (s *AgentState) AddClarification(question, answer string) string {
	s.clarifications++
	key := ClarificationKey(s.clarifications)
	s.context.Set(key, fmt.Sprintf("Q: %s\nA: %s", question, answer))
	return key
}

// Clarifications returns the number of answered clarification questions.
func (s *AgentState) Clarifications() int {
	return s.clarifications
}

// WorkingContext returns the value stored under a working-context key.
func (s *AgentState) WorkingContext(key string) (string, bool) {
	return s.context.Get(key)
}

// Snapshot returns an immutable copy of the state for collaborators.
func (s *AgentState) Snapshot() Snapshot {
	snap := Snapshot{
		Goal:          s.goal,
		Steps:         s.plan.Steps(),
		Context:       s.context.Summary(),
		Iteration:     s.CurrentIteration(),
		MaxIterations: s.maxIterations,
	}
	if s.last != nil {
		last := *s.last
		last.Invocation = cloneInvocation(last.Invocation)
		snap.LastAction = &last
	}
	return snap
}

// Snapshot is the read-only view of AgentState given to the planner and
// action selector.
type Snapshot struct {
	Goal          string         `json:"goal"`
	Steps         []Step         `json:"steps"`
	Context       ContextSummary `json:"context"`
	LastAction    *ActionRecord  `json:"last_action,omitempty"`
	Iteration     int            `json:"iteration"`
	MaxIterations int            `json:"max_iterations"`
}

// LastFailed returns true when the most recent action failed.
func (s Snapshot) LastFailed() bool {
	return s.LastAction != nil && s.LastAction.Failed()
}

// RemainingIterations returns the number of iterations left including the current one.
func (s Snapshot) RemainingIterations() int {
	return s.MaxIterations - s.Iteration + 1
}

func cloneInvocation(inv tool.Invocation) tool.Invocation {
	args := make(map[string]any, len(inv.Args))
	for k, v := range inv.Args {
		args[k] = v
	}
	inv.Args = args
	return inv
}
