package agent

import (
	"errors"
	"testing"
)

func TestNewPlan(t *testing.T) {
	t.Parallel()

	p, err := NewPlan([]string{"identify the target function", "  ", "add error handling"})
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}
	steps := p.Steps()
	if len(steps) != 2 {
		t.Fatalf("len(steps) = %d, want 2", len(steps))
	}
	for i, s := range steps {
		if s.ID != StepID(i+1) || s.Status != StepPending {
			t.Errorf("step %d = %+v", i, s)
		}
	}

	if _, err := NewPlan(nil); !errors.Is(err, ErrEmptyPlan) {
		t.Errorf("NewPlan(nil) error = %v, want %v", err, ErrEmptyPlan)
	}
}

func TestNewPlanFromSteps(t *testing.T) {
	t.Parallel()

	p, err := NewPlanFromSteps([]Step{
		{ID: "s1", Description: "one", Status: StepDone},
		{Description: "two"},
	})
	if err != nil {
		t.Fatalf("NewPlanFromSteps() error = %v", err)
	}
	steps := p.Steps()
	if steps[0].Status != StepPending {
		t.Error("steps must start pending")
	}
	if steps[1].ID != "step-2" {
		t.Errorf("generated id = %q, want step-2", steps[1].ID)
	}

	_, err = NewPlanFromSteps([]Step{{ID: "a", Description: "x"}, {ID: "a", Description: "y"}})
	if !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("duplicate ids error = %v, want %v", err, ErrInvalidPlan)
	}
}

func TestPlan_AtMostOneActive(t *testing.T) {
	t.Parallel()

	p, _ := NewPlan([]string{"a", "b"})
	if err := p.activate("step-1"); err != nil {
		t.Fatalf("activate(step-1) error = %v", err)
	}
	if err := p.activate("step-2"); !errors.Is(err, ErrStepAlreadyActive) {
		t.Errorf("activate(step-2) error = %v, want %v", err, ErrStepAlreadyActive)
	}
	if err := p.activate("step-9"); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("activate(step-9) error = %v, want %v", err, ErrStepNotFound)
	}

	p.release("step-1")
	if _, ok := p.Active(); ok {
		t.Error("no step should be active after release")
	}

	_ = p.markDone("step-1")
	if err := p.activate("step-1"); !errors.Is(err, ErrStepAlreadyDone) {
		t.Errorf("activate(done) error = %v, want %v", err, ErrStepAlreadyDone)
	}
	if len(p.DoneSteps()) != 1 {
		t.Errorf("DoneSteps() = %v", p.DoneSteps())
	}
}

func TestPlan_StepsIsACopy(t *testing.T) {
	t.Parallel()

	p, _ := NewPlan([]string{"a"})
	steps := p.Steps()
	steps[0].Status = StepDone
	if s, _ := p.Step("step-1"); s.Status != StepPending {
		t.Error("mutating Steps() leaked into the plan")
	}
}
