package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"

	domainconfig "github.com/felixgeelhaar/omni/domain/config"
)

var (
	bracedVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*|:\?[^}]*)?\}`)
	bareVar   = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// envExpander expands environment references in configuration text.
//
// Supported forms:
//   - ${VAR}
//   - ${VAR:-default}, used when VAR is unset or empty
//   - ${VAR:?message}, fails when VAR is unset or empty
//   - $VAR
type envExpander struct {
	strict  bool
	lookup  func(string) (string, bool)
	missing []string
}

func newEnvExpander(strict bool) *envExpander {
	return &envExpander{strict: strict, lookup: os.LookupEnv}
}

// Expand replaces every reference in input.
func (e *envExpander) Expand(input string) (string, error) {
	e.missing = nil

	out := bracedVar.ReplaceAllStringFunc(input, func(match string) string {
		sub := bracedVar.FindStringSubmatch(match)
		name, modifier := sub[1], sub[2]
		value, ok := e.lookup(name)

		switch {
		case strings.HasPrefix(modifier, ":-"):
			if !ok || value == "" {
				return modifier[2:]
			}
		case strings.HasPrefix(modifier, ":?"):
			if !ok || value == "" {
				e.missing = append(e.missing, fmt.Sprintf("%s: %s", name, modifier[2:]))
				return match
			}
		default:
			if !ok && e.strict {
				e.missing = append(e.missing, name)
			}
		}
		return value
	})

	out = bareVar.ReplaceAllStringFunc(out, func(match string) string {
		name := match[1:]
		value, ok := e.lookup(name)
		if !ok && e.strict {
			e.missing = append(e.missing, name)
		}
		return value
	})

	if len(e.missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(e.missing, ", "))
	}
	return out, nil
}

// ExpandEnv expands environment references, leaving unset variables empty.
func ExpandEnv(input string) string {
	out, _ := newEnvExpander(false).Expand(input)
	return out
}

// ExpandEnvStrict expands environment references and fails on unset variables.
func ExpandEnvStrict(input string) (string, error) {
	return newEnvExpander(true).Expand(input)
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set win over .env values. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Environment variables that override file configuration.
const (
	EnvProvider      = "OMNI_PROVIDER"
	EnvModel         = "OMNI_MODEL"
	EnvBaseURL       = "OMNI_BASE_URL"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenRouterKey = "OPENROUTER_API_KEY"
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
	EnvOllamaURL     = "OLLAMA_URL"
)

const (
	defaultOllamaURL     = "http://localhost:11434/v1"
	defaultOpenRouterURL = "https://openrouter.ai/api/v1"
)

// ApplyEnvOverrides fills provider settings from the environment. Explicit
// OMNI_* variables replace file values; API keys only fill empty fields.
func ApplyEnvOverrides(cfg *domainconfig.AgentConfig) {
	applyEnvOverrides(cfg, os.LookupEnv)
}

func applyEnvOverrides(cfg *domainconfig.AgentConfig, lookup func(string) (string, bool)) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	p := &cfg.Provider
	if v := get(EnvProvider); v != "" {
		p.Kind = strings.ToLower(v)
	}
	if v := get(EnvModel); v != "" {
		p.Model = v
	}
	if v := get(EnvBaseURL); v != "" {
		p.BaseURL = v
	}

	switch p.Kind {
	case domainconfig.ProviderOpenAI:
		if p.APIKey == "" {
			p.APIKey = get(EnvOpenAIKey)
		}
	case domainconfig.ProviderOpenRouter:
		if p.APIKey == "" {
			p.APIKey = get(EnvOpenRouterKey)
		}
		if p.BaseURL == "" {
			p.BaseURL = defaultOpenRouterURL
		}
	case domainconfig.ProviderAnthropic:
		if p.APIKey == "" {
			p.APIKey = get(EnvAnthropicKey)
		}
	case domainconfig.ProviderOllama:
		if p.BaseURL == "" {
			p.BaseURL = get(EnvOllamaURL)
		}
		if p.BaseURL == "" {
			p.BaseURL = defaultOllamaURL
		}
	}
}
