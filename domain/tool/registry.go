package tool

import "context"

// Invocation is one request to run a tool, as decided by the action selector.
type Invocation struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`

	// StepID attributes the call to a plan step; empty means unattributed.
	StepID string `json:"step_id,omitempty"`
}

// Registry defines the interface for tool registration, lookup and invocation.
// This is a repository interface - implementations are in infrastructure.
type Registry interface {
	// Register adds a tool to the registry. It fails with ErrToolExists on
	// a duplicate name.
	Register(tool Tool) error

	// Lookup returns the descriptor for a tool or ErrToolNotFound.
	Lookup(name string) (Descriptor, error)

	// Get retrieves a tool by name.
	Get(name string) (Tool, bool)

	// Descriptors returns every registered descriptor sorted by name.
	Descriptors() []Descriptor

	// Names returns all registered tool names sorted.
	Names() []string

	// Invoke validates and runs a tool. It always returns a valid Result;
	// no error or panic escapes.
	Invoke(ctx context.Context, inv Invocation) Result
}
