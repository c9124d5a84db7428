// Package middleware provides composable middleware for tool execution.
package middleware

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/omni/domain/tool"
)

// ExecutionContext contains all information needed for middleware decisions.
type ExecutionContext struct {
	// RunID is the unique identifier for the current run.
	RunID string
	// Iteration is the loop iteration that issued the call.
	Iteration int
	// StepID is the plan step the call is attributed to, if any.
	StepID string
	// Tool is the tool being executed.
	Tool tool.Tool
	// Args are the validated, decoded arguments.
	Args map[string]any
	// Input is the JSON encoding of Args handed to the tool.
	Input json.RawMessage
}

// Handler executes a tool and returns its result.
type Handler func(ctx context.Context, execCtx *ExecutionContext) (tool.Result, error)

// Middleware wraps a Handler with additional behavior.
// Middleware can run code around the next handler, short-circuit by not
// calling it, or transform its result.
type Middleware func(next Handler) Handler

// Chain composes multiple middleware into a single middleware.
// Chain(A, B, C) produces: A -> B -> C -> handler
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		handler := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}

// Noop returns a middleware that passes through.
func Noop() Middleware {
	return func(next Handler) Handler {
		return next
	}
}

// RunInfo identifies the loop iteration issuing a tool call.
type RunInfo struct {
	RunID     string
	Iteration int
	StepID    string
}

type runInfoKey struct{}

// ContextWithRun attaches run information to a context.
func ContextWithRun(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the run information attached to ctx.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
