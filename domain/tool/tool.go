package tool

import (
	"context"
	"encoding/json"
	"time"
)

// Tool represents a registered capability the agent can invoke.
type Tool interface {
	// Name returns the stable string identifier for the tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Parameters returns the parameter schema used to validate arguments.
	Parameters() Schema

	// Annotations returns the tool's behavioral annotations.
	Annotations() Annotations

	// Execute runs the tool with validated, JSON-encoded arguments.
	Execute(ctx context.Context, input json.RawMessage) (Result, error)
}

// Handler is the function signature for tool execution.
// A returned error is converted into a failure Result by the registry.
type Handler func(ctx context.Context, input json.RawMessage) (Result, error)

// Descriptor is the read-only registration record of a tool.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  Schema      `json:"parameters"`
	Annotations Annotations `json:"annotations"`
}

// DescriptorOf returns the descriptor for a tool.
func DescriptorOf(t Tool) Descriptor {
	return Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters().Clone(),
		Annotations: t.Annotations(),
	}
}

// Definition is a concrete implementation of Tool.
type Definition struct {
	name        string
	description string
	parameters  Schema
	annotations Annotations
	handler     Handler
}

// Name returns the tool name.
func (d *Definition) Name() string {
	return d.name
}

// Description returns the tool description.
func (d *Definition) Description() string {
	return d.description
}

// Parameters returns the parameter schema.
func (d *Definition) Parameters() Schema {
	return d.parameters
}

// Annotations returns the tool annotations.
func (d *Definition) Annotations() Annotations {
	return d.annotations
}

// Execute runs the tool handler.
func (d *Definition) Execute(ctx context.Context, input json.RawMessage) (Result, error) {
	if d.handler == nil {
		return Result{}, ErrNoHandler
	}
	return d.handler(ctx, input)
}

// Builder provides a fluent API for constructing tools.
type Builder struct {
	def *Definition
	err error
}

// NewBuilder creates a new tool builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		def: &Definition{
			name:        name,
			parameters:  Schema{},
			annotations: DefaultAnnotations(),
		},
	}
}

// WithDescription sets the tool description.
func (b *Builder) WithDescription(desc string) *Builder {
	if b.err != nil {
		return b
	}
	b.def.description = desc
	return b
}

// WithParam adds a named parameter to the schema.
func (b *Builder) WithParam(name string, p Param) *Builder {
	if b.err != nil {
		return b
	}
	if !p.Type.IsValid() {
		b.err = ErrInvalidParamType
		return b
	}
	b.def.parameters[name] = p
	return b
}

// WithParameters replaces the parameter schema.
func (b *Builder) WithParameters(schema Schema) *Builder {
	if b.err != nil {
		return b
	}
	b.def.parameters = schema.Clone()
	return b
}

// WithAnnotations sets the tool annotations.
func (b *Builder) WithAnnotations(annotations Annotations) *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations = annotations
	return b
}

// ReadOnly marks the tool as read-only.
func (b *Builder) ReadOnly() *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.ReadOnly = true
	b.def.annotations.RiskLevel = RiskNone
	return b
}

// Destructive marks the tool as destructive.
func (b *Builder) Destructive() *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.Destructive = true
	b.def.annotations.RequiresConfirmation = true
	if b.def.annotations.RiskLevel < RiskHigh {
		b.def.annotations.RiskLevel = RiskHigh
	}
	return b
}

// Idempotent marks the tool as idempotent.
func (b *Builder) Idempotent() *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.Idempotent = true
	return b
}

// WithRiskLevel sets the risk level.
func (b *Builder) WithRiskLevel(level RiskLevel) *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.RiskLevel = level
	return b
}

// RequiresConfirmation marks the tool as needing an explicit user confirmation.
func (b *Builder) RequiresConfirmation() *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.RequiresConfirmation = true
	return b
}

// WithTimeout overrides the executor's default timeout for this tool.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.Timeout = d
	return b
}

// WithHandler sets the tool handler function.
func (b *Builder) WithHandler(handler Handler) *Builder {
	if b.err != nil {
		return b
	}
	b.def.handler = handler
	return b
}

// Build constructs the tool definition.
func (b *Builder) Build() (Tool, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.def.name == "" {
		return nil, ErrEmptyName
	}
	return b.def, nil
}

// MustBuild constructs the tool definition or panics on error.
func (b *Builder) MustBuild() Tool {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
