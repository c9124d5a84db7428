// Package pack builds the tool packs named by a configuration.
package pack

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/omni/domain/config"
	"github.com/felixgeelhaar/omni/domain/pack"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/logging"
	"github.com/felixgeelhaar/omni/pack/codeedit"
	"github.com/felixgeelhaar/omni/pack/fileops"
	"github.com/felixgeelhaar/omni/pack/git"
	"github.com/felixgeelhaar/omni/pack/shell"
)

// Factory builds one pack from configuration. A nil pack with a nil error
// means the pack does not apply to this workspace and is skipped.
type Factory func(cfg *config.AgentConfig) (*pack.Pack, error)

// Registry maps pack names to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty pack registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry holding the built-in packs.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("fileops", newFileOps)
	_ = r.Register("shell", newShell)
	_ = r.Register("git", newGit)
	_ = r.Register("codeedit", newCodeEdit)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return pack.ErrInvalidPack
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", pack.ErrPackExists, name)
	}
	r.factories[name] = f
	return nil
}

// Names returns the registered pack names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the packs listed in cfg.Tools.Packs, in order.
func (r *Registry) Build(cfg *config.AgentConfig) ([]*pack.Pack, error) {
	packs := make([]*pack.Pack, 0, len(cfg.Tools.Packs))
	for _, name := range cfg.Tools.Packs {
		r.mu.RLock()
		f, ok := r.factories[name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", pack.ErrPackNotFound, name)
		}

		p, err := f(cfg)
		if err != nil {
			return nil, fmt.Errorf("build pack %s: %w", name, err)
		}
		if p == nil {
			logging.Warn().
				Add(logging.Component("packs")).
				Add(logging.Str("pack", name)).
				Msg("pack skipped for this workspace")
			continue
		}
		packs = append(packs, p)
	}
	return packs, nil
}

// Install builds the configured packs and registers their tools.
func (r *Registry) Install(reg tool.Registry, cfg *config.AgentConfig) ([]*pack.Pack, error) {
	packs, err := r.Build(cfg)
	if err != nil {
		return nil, err
	}
	if err := pack.Install(reg, packs...); err != nil {
		return nil, err
	}
	return packs, nil
}

func newFileOps(cfg *config.AgentConfig) (*pack.Pack, error) {
	return fileops.New(fileops.WithRoot(cfg.Tools.Workspace))
}

func newShell(cfg *config.AgentConfig) (*pack.Pack, error) {
	s := cfg.Tools.Shell
	opts := []shell.Option{
		shell.WithWorkingDir(cfg.Tools.Workspace),
		shell.WithBlockedCommands(s.BlockedCommands...),
	}
	if len(s.AllowedCommands) > 0 {
		opts = append(opts, shell.WithAllowedCommands(s.AllowedCommands...))
	}
	if s.Timeout > 0 {
		opts = append(opts, shell.WithTimeout(s.Timeout.Duration()))
	}
	return shell.New(opts...)
}

func newGit(cfg *config.AgentConfig) (*pack.Pack, error) {
	p, err := git.New(cfg.Tools.Workspace, git.WithWriteAccess())
	if errors.Is(err, git.ErrNotRepository) {
		return nil, nil
	}
	return p, err
}

func newCodeEdit(cfg *config.AgentConfig) (*pack.Pack, error) {
	return codeedit.New(codeedit.WithRoot(cfg.Tools.Workspace))
}
