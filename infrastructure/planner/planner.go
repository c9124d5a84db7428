// Package planner turns model inference into plans and action decisions.
package planner

import (
	"context"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/tool"
)

// PlanRequest asks for the strategic plan of a goal.
type PlanRequest struct {
	Goal string
	// Strict is set on the retry after an unusable answer.
	Strict bool
	// Attempt is 1-based.
	Attempt int
}

// Planner produces the plan of a goal once per run.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*agent.Plan, error)
}

// SelectRequest carries the read-only view the selector decides on.
type SelectRequest struct {
	Snapshot agent.Snapshot
	Tools    []tool.Descriptor
}

// Selector picks the next action. An error means the call itself failed;
// unusable output is reported as a malformed decision instead.
type Selector interface {
	Select(ctx context.Context, req SelectRequest) (agent.Decision, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, req PlanRequest) (*agent.Plan, error)

// Plan implements Planner.
func (f PlannerFunc) Plan(ctx context.Context, req PlanRequest) (*agent.Plan, error) {
	return f(ctx, req)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, req SelectRequest) (agent.Decision, error)

// Select implements Selector.
func (f SelectorFunc) Select(ctx context.Context, req SelectRequest) (agent.Decision, error) {
	return f(ctx, req)
}
