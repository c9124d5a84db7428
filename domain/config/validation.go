package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the dotted path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// Unwrap allows errors.Is(err, ErrValidationFailed).
func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates assistant configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(cfg *AgentConfig) ValidationErrors {
	v.errors = nil

	v.validateAgent(cfg)
	v.validateProvider(cfg)
	v.validateTools(cfg)
	v.validatePolicy(cfg)
	v.validateResilience(cfg)
	v.validateLogging(cfg)
	v.validateTelemetry(cfg)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateAgent(cfg *AgentConfig) {
	a := cfg.Agent
	if a.MaxIterations <= 0 {
		v.addError("agent.max_iterations", "max_iterations must be positive")
	}
	if a.PlannerTimeout < 0 {
		v.addError("agent.planner_timeout", "planner_timeout must be non-negative")
	}
	if a.SelectorTimeout < 0 {
		v.addError("agent.selector_timeout", "selector_timeout must be non-negative")
	}
	if a.ToolTimeout < 0 {
		v.addError("agent.tool_timeout", "tool_timeout must be non-negative")
	}
	if a.MinPlanSteps < 0 {
		v.addError("agent.min_plan_steps", "min_plan_steps must be non-negative")
	}
	if a.MaxPlanSteps > 0 && a.MaxPlanSteps < a.MinPlanSteps {
		v.addError("agent.max_plan_steps", "max_plan_steps must be >= min_plan_steps")
	}
	if a.MaxClarifications < 0 {
		v.addError("agent.max_clarifications", "max_clarifications must be non-negative")
	}
	if _, ok := a.LookupPersona(a.Persona); !ok {
		v.addError("agent.persona", fmt.Sprintf("unknown persona %q", a.Persona))
	}
	for i, p := range a.Personas {
		if strings.TrimSpace(p.Name) == "" {
			v.addError(fmt.Sprintf("agent.personas[%d].name", i), "name is required")
		}
	}
	if a.Context.MaxEntries < 0 || a.Context.MaxEntryBytes < 0 || a.Context.MaxTotalBytes < 0 {
		v.addError("agent.context", "context limits must be non-negative")
	}
}

func (v *Validator) validateProvider(cfg *AgentConfig) {
	switch cfg.Provider.Kind {
	case ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic:
		if cfg.Provider.APIKey == "" {
			v.addError("provider.api_key", fmt.Sprintf("api_key is required for %s", cfg.Provider.Kind))
		}
	case ProviderOllama, ProviderMock:
	case "":
		v.addError("provider.kind", "kind is required")
	default:
		v.addError("provider.kind", fmt.Sprintf("unknown provider: %s", cfg.Provider.Kind))
	}
	if cfg.Provider.Kind != ProviderMock && cfg.Provider.Kind != "" && cfg.Provider.Model == "" {
		v.addError("provider.model", "model is required")
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 2 {
		v.addError("provider.temperature", "temperature must be between 0 and 2")
	}
	if cfg.Provider.MaxTokens < 0 {
		v.addError("provider.max_tokens", "max_tokens must be non-negative")
	}
}

func (v *Validator) validateTools(cfg *AgentConfig) {
	valid := map[string]bool{"fileops": true, "shell": true, "git": true, "codeedit": true}
	for i, p := range cfg.Tools.Packs {
		if !valid[p] {
			v.addError(fmt.Sprintf("tools.packs[%d]", i), fmt.Sprintf("unknown pack: %s", p))
		}
	}
	for name, limit := range cfg.Tools.CallLimits {
		if limit < 0 {
			v.addError(fmt.Sprintf("tools.call_limits.%s", name), "limit must be non-negative")
		}
	}
	if cfg.Tools.Shell.Timeout < 0 {
		v.addError("tools.shell.timeout", "timeout must be non-negative")
	}
}

func (v *Validator) validatePolicy(cfg *AgentConfig) {
	switch cfg.Policy.Confirmation {
	case "", "prompt", "auto", "deny":
	default:
		v.addError("policy.confirmation", fmt.Sprintf("invalid mode: %s", cfg.Policy.Confirmation))
	}
	if cfg.Policy.RateLimit.Enabled {
		if cfg.Policy.RateLimit.Rate <= 0 {
			v.addError("policy.rate_limit.rate", "rate must be positive when enabled")
		}
		if cfg.Policy.RateLimit.Burst <= 0 {
			v.addError("policy.rate_limit.burst", "burst must be positive when enabled")
		}
	}
}

func (v *Validator) validateResilience(cfg *AgentConfig) {
	r := cfg.Resilience
	if r.Retry.MaxAttempts < 0 {
		v.addError("resilience.retry.max_attempts", "max_attempts must be non-negative")
	}
	if r.Retry.MaxAttempts > 1 && r.Retry.Multiplier < 1 {
		v.addError("resilience.retry.multiplier", "multiplier must be >= 1")
	}
	if r.CircuitBreaker.Threshold < 0 {
		v.addError("resilience.circuit_breaker.threshold", "threshold must be non-negative")
	}
}

func (v *Validator) validateLogging(cfg *AgentConfig) {
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "", "console", "json":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", cfg.Logging.Format))
	}
}

func (v *Validator) validateTelemetry(cfg *AgentConfig) {
	if !cfg.Telemetry.Tracing {
		return
	}
	switch cfg.Telemetry.Exporter {
	case "", "stdout":
	case "otlp":
		if cfg.Telemetry.Endpoint == "" {
			v.addError("telemetry.endpoint", "endpoint is required for otlp")
		}
	default:
		v.addError("telemetry.exporter", fmt.Sprintf("unknown exporter: %s", cfg.Telemetry.Exporter))
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		v.addError("telemetry.sample_rate", "sample_rate must be between 0 and 1")
	}
}
