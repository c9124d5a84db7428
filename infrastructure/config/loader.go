// Package config loads assistant configuration from YAML or JSON files,
// .env files and the process environment.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/omni/domain/config"
)

// Format represents a configuration file format.
type Format string

const (
	// FormatYAML is the YAML format.
	FormatYAML Format = "yaml"
	// FormatJSON is the JSON format.
	FormatJSON Format = "json"
)

// DefaultSearchPaths are tried in order by Discover.
var DefaultSearchPaths = []string{"omni.yaml", "omni.yml", ".omni.yaml", "omni.json"}

// Loader loads assistant configuration. File values are layered on top of
// config.Default, then environment overrides apply, then validation runs.
type Loader struct {
	// ExpandEnv enables ${VAR} expansion inside the file.
	ExpandEnv bool
	// StrictEnv fails if referenced env vars are missing.
	StrictEnv bool
	// EnvOverrides applies OMNI_* and provider key variables.
	EnvOverrides bool
	// Validate enables configuration validation.
	Validate bool

	lookup func(string) (string, bool)
}

// LoaderOption configures the loader.
type LoaderOption func(*Loader)

// WithEnvExpansion enables or disables environment variable expansion.
func WithEnvExpansion(enabled bool) LoaderOption {
	return func(l *Loader) { l.ExpandEnv = enabled }
}

// WithStrictEnv enables strict environment variable checking.
func WithStrictEnv(enabled bool) LoaderOption {
	return func(l *Loader) { l.StrictEnv = enabled }
}

// WithEnvOverrides enables or disables environment overrides.
func WithEnvOverrides(enabled bool) LoaderOption {
	return func(l *Loader) { l.EnvOverrides = enabled }
}

// WithValidation enables or disables configuration validation.
func WithValidation(enabled bool) LoaderOption {
	return func(l *Loader) { l.Validate = enabled }
}

// WithLookup replaces os.LookupEnv for overrides and expansion.
func WithLookup(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		if fn != nil {
			l.lookup = fn
		}
	}
}

// NewLoader creates a loader. By default expansion, overrides and
// validation are enabled.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		ExpandEnv:    true,
		EnvOverrides: true,
		Validate:     true,
		lookup:       os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Discover returns the first existing file among paths, or
// DefaultSearchPaths when none are given. It returns "" when nothing exists.
func Discover(dir string, paths ...string) string {
	if len(paths) == 0 {
		paths = DefaultSearchPaths
	}
	for _, p := range paths {
		full := p
		if !filepath.IsAbs(p) {
			full = filepath.Join(dir, p)
		}
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return full
		}
	}
	return ""
}

// LoadDefault returns config.Default with environment overrides applied
// and validated. It is used when no config file exists.
func (l *Loader) LoadDefault() (*config.AgentConfig, error) {
	cfg := config.Default()
	return l.finish(&cfg)
}

// LoadFile loads configuration from a file path.
func (l *Loader) LoadFile(path string) (*config.AgentConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("access config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", config.ErrInvalidFormat, path)
	}

	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return l.Load(f, format)
}

// FormatOf derives the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", config.ErrUnsupportedFormat, ext)
	}
}

// Load loads configuration from a reader.
func (l *Loader) Load(r io.Reader, format Format) (*config.AgentConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if l.ExpandEnv {
		e := newEnvExpander(l.StrictEnv)
		e.lookup = l.lookup
		expanded, err := e.Expand(string(data))
		if err != nil {
			return nil, err
		}
		data = []byte(expanded)
	}

	cfg := config.Default()
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidFormat, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidFormat, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnsupportedFormat, format)
	}

	return l.finish(&cfg)
}

// LoadString loads configuration from a string.
func (l *Loader) LoadString(content string, format Format) (*config.AgentConfig, error) {
	return l.Load(strings.NewReader(content), format)
}

// LoadBytes loads configuration from bytes.
func (l *Loader) LoadBytes(data []byte, format Format) (*config.AgentConfig, error) {
	return l.Load(bytes.NewReader(data), format)
}

func (l *Loader) finish(cfg *config.AgentConfig) (*config.AgentConfig, error) {
	if l.EnvOverrides {
		applyEnvOverrides(cfg, l.lookup)
	}
	if l.Validate {
		if errs := config.NewValidator().Validate(cfg); errs.HasErrors() {
			return nil, fmt.Errorf("%w: %v", config.ErrValidationFailed, errs)
		}
	}
	return cfg, nil
}
