// Package pack provides types for reusable tool collections.
package pack

import (
	"fmt"

	"github.com/felixgeelhaar/omni/domain/tool"
)

// Pack is a collection of related tools.
type Pack struct {
	// Name is the unique identifier for the pack.
	Name string

	// Description explains what the pack provides.
	Description string

	// Version is the semantic version of the pack.
	Version string

	// Tools is the collection of tools in this pack.
	Tools []tool.Tool
}

// ToolNames returns the names of all tools in the pack.
func (p *Pack) ToolNames() []string {
	names := make([]string, len(p.Tools))
	for i, t := range p.Tools {
		names[i] = t.Name()
	}
	return names
}

// GetTool returns a tool by name from the pack.
func (p *Pack) GetTool(name string) (tool.Tool, bool) {
	for _, t := range p.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Install registers every tool of the packs, stopping at the first failure.
func Install(reg tool.Registry, packs ...*Pack) error {
	for _, p := range packs {
		for _, t := range p.Tools {
			if err := reg.Register(t); err != nil {
				return fmt.Errorf("install pack %s: %w", p.Name, err)
			}
		}
	}
	return nil
}

// Builder provides a fluent API for constructing packs.
type Builder struct {
	pack *Pack
}

// NewBuilder creates a new pack builder.
func NewBuilder(name string) *Builder {
	return &Builder{pack: &Pack{Name: name}}
}

// WithDescription sets the pack description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.pack.Description = desc
	return b
}

// WithVersion sets the pack version.
func (b *Builder) WithVersion(version string) *Builder {
	b.pack.Version = version
	return b
}

// AddTools adds tools to the pack.
func (b *Builder) AddTools(tools ...tool.Tool) *Builder {
	b.pack.Tools = append(b.pack.Tools, tools...)
	return b
}

// Build returns the constructed pack.
func (b *Builder) Build() (*Pack, error) {
	if b.pack.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidPack)
	}
	seen := make(map[string]bool, len(b.pack.Tools))
	for _, t := range b.pack.Tools {
		if seen[t.Name()] {
			return nil, fmt.Errorf("%w: duplicate tool %s", ErrInvalidPack, t.Name())
		}
		seen[t.Name()] = true
	}
	return b.pack, nil
}

// MustBuild returns the constructed pack or panics.
func (b *Builder) MustBuild() *Pack {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
