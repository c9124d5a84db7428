package agent

import (
	"fmt"
	"strings"
)

// StepStatus is the progress marker of a plan step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepActive  StepStatus = "active"
	StepDone    StepStatus = "done"
)

// Step is one strategic item of a plan.
type Step struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// Plan is the ordered list of steps produced once by the planner.
// Steps are never reordered or removed; only their status changes.
type Plan struct {
	steps []Step
}

// StepID returns the identifier assigned to the n-th (1-based) step.
func StepID(n int) string {
	return fmt.Sprintf("step-%d", n)
}

// NewPlan builds a plan from step descriptions, assigning sequential ids.
func NewPlan(descriptions []string) (*Plan, error) {
	steps := make([]Step, 0, len(descriptions))
	for _, d := range descriptions {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		steps = append(steps, Step{ID: StepID(len(steps) + 1), Description: d, Status: StepPending})
	}
	if len(steps) == 0 {
		return nil, ErrEmptyPlan
	}
	return &Plan{steps: steps}, nil
}

// NewPlanFromSteps builds a plan from explicit steps. Empty ids are filled in,
// and every step starts pending.
func NewPlanFromSteps(steps []Step) (*Plan, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyPlan
	}
	seen := make(map[string]bool, len(steps))
	out := make([]Step, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			s.ID = StepID(i + 1)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: duplicate step id %q", ErrInvalidPlan, s.ID)
		}
		if strings.TrimSpace(s.Description) == "" {
			return nil, fmt.Errorf("%w: step %q has no description", ErrInvalidPlan, s.ID)
		}
		seen[s.ID] = true
		s.Status = StepPending
		out[i] = s
	}
	return &Plan{steps: out}, nil
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

// Steps returns a copy of the steps in order.
func (p *Plan) Steps() []Step {
	if p == nil {
		return nil
	}
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Step returns the step with the given id.
func (p *Plan) Step(id string) (Step, bool) {
	if i := p.index(id); i >= 0 {
		return p.steps[i], true
	}
	return Step{}, false
}

// Active returns the currently active step, if any.
func (p *Plan) Active() (Step, bool) {
	if p == nil {
		return Step{}, false
	}
	for _, s := range p.steps {
		if s.Status == StepActive {
			return s, true
		}
	}
	return Step{}, false
}

// DoneSteps returns the steps marked done, in plan order.
func (p *Plan) DoneSteps() []Step {
	var out []Step
	for _, s := range p.Steps() {
		if s.Status == StepDone {
			out = append(out, s)
		}
	}
	return out
}

// activate marks a pending step active. At most one step may be active.
func (p *Plan) activate(id string) error {
	i := p.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, id)
	}
	if active, ok := p.Active(); ok && active.ID != id {
		return fmt.Errorf("%w: %s", ErrStepAlreadyActive, active.ID)
	}
	if p.steps[i].Status == StepDone {
		return fmt.Errorf("%w: %s", ErrStepAlreadyDone, id)
	}
	p.steps[i].Status = StepActive
	return nil
}

// release returns an active step to pending.
func (p *Plan) release(id string) {
	if i := p.index(id); i >= 0 && p.steps[i].Status == StepActive {
		p.steps[i].Status = StepPending
	}
}

// markDone marks a step done. Marking a done step again is a no-op.
func (p *Plan) markDone(id string) error {
	i := p.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, id)
	}
	p.steps[i].Status = StepDone
	return nil
}

func (p *Plan) clone() *Plan {
	if p == nil {
		return nil
	}
	return &Plan{steps: p.Steps()}
}

func (p *Plan) index(id string) int {
	if p == nil {
		return -1
	}
	for i, s := range p.steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}
