package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/omni/domain/config"
	"github.com/felixgeelhaar/omni/infrastructure/prompt"
	"github.com/felixgeelhaar/omni/infrastructure/resilience"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// ErrUnknownProvider indicates an unsupported provider kind.
var ErrUnknownProvider = errors.New("unknown provider")

const (
	defaultOpenRouterURL = "https://openrouter.ai/api/v1"
	defaultOllamaURL     = "http://localhost:11434/v1"
)

// Canned replies of the offline mock provider.
const (
	mockPlanReply     = `{"steps": ["Inspect the workspace", "Report what was found"]}`
	mockDecisionReply = `{"action": "done", "summary": "mock provider: nothing to do"}`
)

// NewProvider builds the inference provider selected by the configuration.
func NewProvider(cfg config.ProviderConfig) (Provider, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	switch kind {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	case config.ProviderOpenRouter:
		return NewOpenAIProvider(OpenAIConfig{
			Name:    kind,
			APIKey:  cfg.APIKey,
			BaseURL: orDefault(cfg.BaseURL, defaultOpenRouterURL),
			Model:   cfg.Model,
		}), nil
	case config.ProviderOllama:
		return NewOpenAIProvider(OpenAIConfig{
			Name:    kind,
			APIKey:  orDefault(cfg.APIKey, "ollama"),
			BaseURL: orDefault(cfg.BaseURL, defaultOllamaURL),
			Model:   cfg.Model,
		}), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	case config.ProviderMock:
		return NewMockProvider(
			MockResponse{Content: mockPlanReply},
			MockResponse{Content: mockDecisionReply},
		), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Kind)
	}
}

// CallerFor builds the resilience wrapper of one model role.
func CallerFor(role string, cfg *config.AgentConfig) *resilience.Caller {
	timeout := cfg.Agent.SelectorTimeout.Duration()
	if role == RolePlanner {
		timeout = cfg.Agent.PlannerTimeout.Duration()
	}
	r := cfg.Resilience.Retry
	return resilience.NewCaller(resilience.CallerConfig{
		Name:         role,
		Timeout:      timeout,
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay.Duration(),
		Multiplier:   r.Multiplier,
	})
}

// Models bundles the planner and selector of one configuration.
type Models struct {
	Provider Provider
	Planner  *LLMPlanner
	Selector *LLMSelector
}

// NewModels builds the provider, planner and selector from configuration.
func NewModels(cfg *config.AgentConfig, metrics telemetry.Metrics) (*Models, error) {
	provider, err := NewProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return NewModelsWithProvider(provider, cfg, metrics)
}

// NewModelsWithProvider builds the planner and selector around a provider.
func NewModelsWithProvider(provider Provider, cfg *config.AgentConfig, metrics telemetry.Metrics) (*Models, error) {
	minSteps, maxSteps := planBounds(cfg.Agent)
	prompts, err := prompt.NewBuilder(
		prompt.WithPlanBounds(minSteps, maxSteps),
		prompt.WithPersona(cfg.Agent.Preamble()),
	)
	if err != nil {
		return nil, err
	}
	base := LLMConfig{
		Provider:    provider,
		Model:       cfg.Provider.Model,
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
		Prompts:     prompts,
		Metrics:     metrics,
		MinSteps:    minSteps,
		MaxSteps:    maxSteps,
	}

	plannerCfg := base
	plannerCfg.Caller = CallerFor(RolePlanner, cfg)
	selectorCfg := base
	selectorCfg.Caller = CallerFor(RoleSelector, cfg)

	return &Models{
		Provider: provider,
		Planner:  NewLLMPlanner(plannerCfg),
		Selector: NewLLMSelector(selectorCfg),
	}, nil
}

func planBounds(a config.AgentSettings) (int, int) {
	minSteps, maxSteps := a.MinPlanSteps, a.MaxPlanSteps
	if minSteps <= 0 {
		minSteps = 1
	}
	if maxSteps <= 0 {
		maxSteps = 7
	}
	if maxSteps < minSteps {
		maxSteps = minSteps
	}
	return minSteps, maxSteps
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
