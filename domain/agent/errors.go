package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the execution loop.
var (
	// ErrInvalidState indicates the state is not a recognized loop state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidTransition indicates an attempted state transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrEmptyGoal indicates a run was started without a goal.
	ErrEmptyGoal = errors.New("goal cannot be empty")

	// ErrInvalidBudget indicates a non-positive iteration budget.
	ErrInvalidBudget = errors.New("invalid iteration budget")

	// ErrBudgetExhausted indicates the iteration budget is spent.
	ErrBudgetExhausted = errors.New("iteration budget exhausted")

	// ErrEmptyPlan indicates the planner produced no steps.
	ErrEmptyPlan = errors.New("plan has no steps")

	// ErrInvalidPlan indicates the planner produced an unusable plan.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrPlanAlreadySet indicates an attempt to replace the plan.
	ErrPlanAlreadySet = errors.New("plan already set")

	// ErrStepNotFound indicates a step id that is not part of the plan.
	ErrStepNotFound = errors.New("step not found")

	// ErrStepAlreadyActive indicates another step is already active.
	ErrStepAlreadyActive = errors.New("another step is already active")

	// ErrStepAlreadyDone indicates the step is already done.
	ErrStepAlreadyDone = errors.New("step already done")

	// ErrPlanningFailed indicates the planner failed on every attempt.
	ErrPlanningFailed = errors.New("planning failed")

	// ErrInfrastructure indicates an unrecoverable fault outside the tools.
	ErrInfrastructure = errors.New("infrastructure fault")

	// ErrAwaitingClarification indicates the run is suspended on a question.
	ErrAwaitingClarification = errors.New("awaiting clarification")

	// ErrRunNotSuspended indicates Resume was called on a run that is not clarifying.
	ErrRunNotSuspended = errors.New("run is not awaiting clarification")

	// ErrRunTerminated indicates an operation was attempted on a terminated run.
	ErrRunTerminated = errors.New("run already terminated")

	// ErrRunNotFound indicates an unknown run id.
	ErrRunNotFound = errors.New("run not found")
)

// PlanningError reports every failed planning attempt.
type PlanningError struct {
	Attempts int
	Causes   []error
}

// Error implements the error interface.
func (e *PlanningError) Error() string {
	parts := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		parts[i] = fmt.Sprintf("attempt %d: %v", i+1, c)
	}
	return fmt.Sprintf("planning failed after %d attempts: %s", e.Attempts, strings.Join(parts, "; "))
}

// Unwrap returns the per-attempt causes.
func (e *PlanningError) Unwrap() []error {
	return e.Causes
}

// Is matches ErrPlanningFailed.
func (e *PlanningError) Is(target error) bool {
	return target == ErrPlanningFailed
}
