// Package event provides the progress event stream of the execution loop.
package event

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/omni/domain/agent"
)

// Category is the externally visible class of a progress event.
type Category string

// The four progress categories.
const (
	CategoryPlan    Category = "plan"
	CategoryAction  Category = "action"
	CategorySuccess Category = "success"
	CategoryFailure Category = "failure"
)

// IsValid returns true for one of the four categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPlan, CategoryAction, CategorySuccess, CategoryFailure:
		return true
	}
	return false
}

// Event is emitted once per state transition of a run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// RunID is the ID of the run this event belongs to.
	RunID string `json:"run_id"`

	// Sequence orders events within a run, starting at 1.
	Sequence uint64 `json:"sequence"`

	// Category classifies the transition.
	Category Category `json:"category"`

	// SelfCorrection marks a failure that is fed back to the action selector.
	SelfCorrection bool `json:"self_correction,omitempty"`

	From agent.State `json:"from"`
	To   agent.State `json:"to"`

	// Iteration is the loop iteration the transition belongs to.
	Iteration int `json:"iteration"`

	Tool   string `json:"tool,omitempty"`
	StepID string `json:"step_id,omitempty"`

	// Message is a short human-readable description.
	Message string `json:"message"`

	// ErrorText is the literal failure text, verbatim.
	ErrorText string `json:"error_text,omitempty"`

	// Timestamp is when the transition happened.
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the structural invariants of an event.
func (e Event) Validate() error {
	if e.RunID == "" {
		return fmt.Errorf("%w: missing run id", ErrInvalidEvent)
	}
	if !e.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidEvent, e.Category)
	}
	if e.SelfCorrection && e.Category != CategoryFailure {
		return fmt.Errorf("%w: self-correction on a %s event", ErrInvalidEvent, e.Category)
	}
	return nil
}

// Label renders the category for display, distinguishing self-correction.
func (e Event) Label() string {
	switch {
	case e.SelfCorrection:
		return "Self-Correction"
	case e.Category == CategoryPlan:
		return "Plan"
	case e.Category == CategoryAction:
		return "Action"
	case e.Category == CategorySuccess:
		return "Success"
	case e.Category == CategoryFailure:
		return "Failure"
	default:
		return string(e.Category)
	}
}
