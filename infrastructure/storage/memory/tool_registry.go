// Package memory provides in-memory storage implementations.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/resilience"
)

// ToolRegistry is an in-memory implementation of tool.Registry. Invoke runs
// validation, the middleware chain and the resilience executor, and turns
// every outcome into a tool.Result.
type ToolRegistry struct {
	tools    map[string]tool.Tool
	executor *resilience.Executor
	chain    *middleware.Registry
	mu       sync.RWMutex
}

// ToolRegistryOption configures a ToolRegistry.
type ToolRegistryOption func(*ToolRegistry)

// WithExecutor sets the resilience executor that runs handlers.
func WithExecutor(e *resilience.Executor) ToolRegistryOption {
	return func(r *ToolRegistry) {
		if e != nil {
			r.executor = e
		}
	}
}

// WithMiddleware appends middleware around every invocation, outermost first.
func WithMiddleware(ms ...middleware.Middleware) ToolRegistryOption {
	return func(r *ToolRegistry) {
		r.chain.Use(ms...)
	}
}

// NewToolRegistry creates a new in-memory tool registry.
func NewToolRegistry(opts ...ToolRegistryOption) *ToolRegistry {
	r := &ToolRegistry{
		tools:    make(map[string]tool.Tool),
		executor: resilience.NewDefaultExecutor(),
		chain:    middleware.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool to the registry.
func (r *ToolRegistry) Register(t tool.Tool) error {
	if t == nil || t.Name() == "" {
		return tool.ErrEmptyName
	}
	for name, p := range t.Parameters() {
		if !p.Type.IsValid() {
			return fmt.Errorf("%w: %s.%s has type %q", tool.ErrInvalidParamType, t.Name(), name, p.Type)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: %s", tool.ErrToolExists, t.Name())
	}

	r.tools[t.Name()] = t
	return nil
}

// MustRegister registers tools and panics on error. Intended for wiring
// static tool sets at startup.
func (r *ToolRegistry) MustRegister(tools ...tool.Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the descriptor of a tool.
func (r *ToolRegistry) Lookup(name string) (tool.Descriptor, error) {
	t, ok := r.Get(name)
	if !ok {
		return tool.Descriptor{}, fmt.Errorf("%w: %s", tool.ErrToolNotFound, name)
	}
	return tool.DescriptorOf(t), nil
}

// Get retrieves a tool by name.
func (r *ToolRegistry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Descriptors returns every registered descriptor sorted by name.
func (r *ToolRegistry) Descriptors() []tool.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tool.Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, tool.DescriptorOf(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all registered tool names sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke validates and runs a tool. It always returns a valid Result: handler
// errors, panics, timeouts and middleware refusals all become failures.
func (r *ToolRegistry) Invoke(ctx context.Context, inv tool.Invocation) tool.Result {
	start := time.Now()

	t, ok := r.Get(inv.Tool)
	if !ok {
		return tool.Failure(tool.NotFoundText(inv.Tool))
	}

	args := inv.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := t.Parameters().Validate(args); err != nil {
		return tool.Failure(tool.InvalidArgumentsText(t.Name(), err))
	}

	input, err := json.Marshal(args)
	if err != nil {
		return tool.Failure(tool.InvalidArgumentsText(t.Name(), err))
	}

	info, _ := middleware.RunInfoFrom(ctx)
	stepID := inv.StepID
	if stepID == "" {
		stepID = info.StepID
	}
	execCtx := &middleware.ExecutionContext{
		RunID:     info.RunID,
		Iteration: info.Iteration,
		StepID:    stepID,
		Tool:      t,
		Args:      args,
		Input:     input,
	}

	handler := r.chain.Chain()(r.execute)
	result, err := handler(ctx, execCtx)
	if err != nil {
		return failureFor(err).WithDuration(time.Since(start))
	}
	if !result.IsValid() {
		return tool.Failuref("tool '%s' returned no result", t.Name()).WithDuration(time.Since(start))
	}
	if result.Duration == 0 {
		result = result.WithDuration(time.Since(start))
	}
	return result
}

func (r *ToolRegistry) execute(ctx context.Context, execCtx *middleware.ExecutionContext) (tool.Result, error) {
	return r.executor.Execute(ctx, execCtx.Tool, execCtx.Input)
}

// CircuitBreakerState reports the breaker state of a tool.
func (r *ToolRegistry) CircuitBreakerState(name string) string {
	return r.executor.CircuitBreakerState(name)
}

func failureFor(err error) tool.Result {
	if errors.Is(err, tool.ErrConfirmationDeclined) {
		return tool.Failure(tool.DeclinedByUser)
	}
	return tool.Failure(err.Error())
}

var _ tool.Registry = (*ToolRegistry)(nil)
