package planner

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/omni/domain/agent"
)

// ScriptedPlanner returns a predefined sequence of plan outcomes for
// deterministic testing. Each entry is either steps or an error.
type ScriptedPlanner struct {
	outcomes []PlanOutcome
	index    int
	requests []PlanRequest
	mu       sync.Mutex
}

// PlanOutcome is one scripted planner answer.
type PlanOutcome struct {
	Steps []string
	Err   error
}

// NewScriptedPlanner creates a scripted planner.
func NewScriptedPlanner(outcomes ...PlanOutcome) *ScriptedPlanner {
	return &ScriptedPlanner{outcomes: outcomes}
}

// Plan returns the next scripted outcome.
func (p *ScriptedPlanner) Plan(_ context.Context, req PlanRequest) (*agent.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.index >= len(p.outcomes) {
		return nil, &ScriptExhaustedError{Calls: p.index + 1}
	}
	o := p.outcomes[p.index]
	p.index++
	if o.Err != nil {
		return nil, o.Err
	}
	return agent.NewPlan(o.Steps)
}

// Requests returns the requests received so far.
func (p *ScriptedPlanner) Requests() []PlanRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlanRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// SelectStep is one scripted selector answer. Check, if set, inspects the
// request before the answer is returned.
type SelectStep struct {
	Decision agent.Decision
	Err      error
	Check    func(SelectRequest) error
}

// ScriptedSelector returns a predefined sequence of decisions. Once the
// script is spent it keeps returning the fallback decision.
type ScriptedSelector struct {
	steps    []SelectStep
	index    int
	fallback agent.Decision
	requests []SelectRequest
	checkErr []error
	mu       sync.Mutex
}

// NewScriptedSelector creates a scripted selector whose fallback is done.
func NewScriptedSelector(steps ...SelectStep) *ScriptedSelector {
	return &ScriptedSelector{
		steps:    steps,
		fallback: agent.NewDoneDecision("script complete"),
	}
}

// WithFallback sets the decision returned after the script is spent.
func (s *ScriptedSelector) WithFallback(d agent.Decision) *ScriptedSelector {
	s.fallback = d
	return s
}

// Select returns the next scripted decision.
func (s *ScriptedSelector) Select(_ context.Context, req SelectRequest) (agent.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.index >= len(s.steps) {
		return s.fallback, nil
	}
	step := s.steps[s.index]
	s.index++
	if step.Check != nil {
		if err := step.Check(req); err != nil {
			s.checkErr = append(s.checkErr, fmt.Errorf("select call %d: %w", s.index, err))
		}
	}
	if step.Err != nil {
		return agent.Decision{}, step.Err
	}
	return step.Decision, nil
}

// Requests returns the requests received so far.
func (s *ScriptedSelector) Requests() []SelectRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SelectRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// CheckErrors returns the failures reported by step checks.
func (s *ScriptedSelector) CheckErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.checkErr...)
}

// IsComplete returns true if all steps have been used.
func (s *ScriptedSelector) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index >= len(s.steps)
}

// ScriptExhaustedError indicates a scripted planner was called too often.
type ScriptExhaustedError struct {
	Calls int
}

func (e *ScriptExhaustedError) Error() string {
	return fmt.Sprintf("script exhausted at call %d", e.Calls)
}
