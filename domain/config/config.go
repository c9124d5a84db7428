// Package config provides domain models for assistant configuration.
package config

import "time"

// AgentConfig represents the complete configuration of one assistant process.
type AgentConfig struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`

	// Agent contains execution loop settings.
	Agent AgentSettings `json:"agent" yaml:"agent"`
	// Provider selects the inference backend.
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	// Tools configures the tool packs.
	Tools ToolsConfig `json:"tools,omitempty" yaml:"tools,omitempty"`
	// Policy contains confirmation and rate settings.
	Policy PolicyConfig `json:"policy,omitempty" yaml:"policy,omitempty"`
	// Resilience contains retry and breaker settings.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Telemetry configures tracing and metrics.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	// Audit configures the persistent progress log.
	Audit AuditConfig `json:"audit,omitempty" yaml:"audit,omitempty"`
}

// AgentSettings contains execution loop settings.
type AgentSettings struct {
	// MaxIterations is the iteration budget of one run.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	// PlannerTimeout bounds one planner call.
	PlannerTimeout Duration `json:"planner_timeout,omitempty" yaml:"planner_timeout,omitempty"`
	// SelectorTimeout bounds one action selector call.
	SelectorTimeout Duration `json:"selector_timeout,omitempty" yaml:"selector_timeout,omitempty"`
	// ToolTimeout is the default bound of one tool call.
	ToolTimeout Duration `json:"tool_timeout,omitempty" yaml:"tool_timeout,omitempty"`
	// MinPlanSteps and MaxPlanSteps bound an accepted plan.
	MinPlanSteps int `json:"min_plan_steps,omitempty" yaml:"min_plan_steps,omitempty"`
	MaxPlanSteps int `json:"max_plan_steps,omitempty" yaml:"max_plan_steps,omitempty"`
	// MaxClarifications bounds the questions one run may ask the user.
	MaxClarifications int `json:"max_clarifications,omitempty" yaml:"max_clarifications,omitempty"`
	// Context bounds the working context.
	Context ContextConfig `json:"context,omitempty" yaml:"context,omitempty"`
	// Persona names the persona whose preamble opens the model prompts.
	Persona string `json:"persona,omitempty" yaml:"persona,omitempty"`
	// Personas adds to or replaces the built-in personas by name.
	Personas []PersonaConfig `json:"personas,omitempty" yaml:"personas,omitempty"`
}

// PersonaConfig is a selectable system-prompt preamble.
type PersonaConfig struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
}

// DefaultPersona adds nothing to the prompts.
const DefaultPersona = "default"

// BuiltinPersonas returns the personas available without configuration.
func BuiltinPersonas() []PersonaConfig {
	return []PersonaConfig{
		{Name: DefaultPersona, Description: "Helpful assistant"},
		{
			Name:         "concise",
			Description:  "Short answers and minimal edits",
			SystemPrompt: "Be terse. Prefer the smallest change that achieves the goal and keep summaries to one sentence.",
		},
		{
			Name:         "cautious",
			Description:  "Inspects before changing anything",
			SystemPrompt: "Be careful. Read the relevant files before changing them and avoid destructive operations unless the goal requires them.",
		},
		{
			Name:         "mentor",
			Description:  "Explains what it does",
			SystemPrompt: "Act as a patient mentor. Make every reason and summary explain what was changed and why it matters to the user.",
		},
	}
}

// LookupPersona resolves a persona name. Configured personas shadow the
// built-in ones; an empty name is the default persona.
func (a AgentSettings) LookupPersona(name string) (PersonaConfig, bool) {
	if name == "" {
		name = DefaultPersona
	}
	for _, p := range a.Personas {
		if p.Name == name {
			return p, true
		}
	}
	for _, p := range BuiltinPersonas() {
		if p.Name == name {
			return p, true
		}
	}
	return PersonaConfig{}, false
}

// Preamble returns the system-prompt preamble of the selected persona.
func (a AgentSettings) Preamble() string {
	p, _ := a.LookupPersona(a.Persona)
	return p.SystemPrompt
}

// ContextConfig bounds the working context.
type ContextConfig struct {
	MaxEntries    int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	MaxEntryBytes int `json:"max_entry_bytes,omitempty" yaml:"max_entry_bytes,omitempty"`
	MaxTotalBytes int `json:"max_total_bytes,omitempty" yaml:"max_total_bytes,omitempty"`
}

// Provider kinds.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderAnthropic  = "anthropic"
	ProviderMock       = "mock"
)

// ProviderConfig selects and configures the inference backend.
type ProviderConfig struct {
	// Kind is one of openai, openrouter, ollama, anthropic, mock.
	Kind string `json:"kind" yaml:"kind"`
	// Model is the provider model name.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIKey authenticates with the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// Temperature is the sampling temperature.
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	// MaxTokens caps the response length.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// ToolsConfig configures the tool packs.
type ToolsConfig struct {
	// Workspace is the root directory file tools are confined to.
	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	// Packs lists the enabled packs (fileops, shell, git, codeedit).
	Packs []string `json:"packs,omitempty" yaml:"packs,omitempty"`
	// Shell configures the run_command tool.
	Shell ShellConfig `json:"shell,omitempty" yaml:"shell,omitempty"`
	// CallLimits caps calls per tool name; "*" caps all calls.
	CallLimits map[string]int `json:"call_limits,omitempty" yaml:"call_limits,omitempty"`
}

// ShellConfig configures the run_command tool.
type ShellConfig struct {
	// AllowedCommands restricts commands to this list when non-empty.
	AllowedCommands []string `json:"allowed_commands,omitempty" yaml:"allowed_commands,omitempty"`
	// BlockedCommands extends the built-in block list.
	BlockedCommands []string `json:"blocked_commands,omitempty" yaml:"blocked_commands,omitempty"`
	// Timeout bounds one command.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// PolicyConfig contains confirmation and rate settings.
type PolicyConfig struct {
	// Confirmation is the confirmation mode (prompt, auto, deny).
	Confirmation string `json:"confirmation,omitempty" yaml:"confirmation,omitempty"`
	// RequireForTools always require confirmation.
	RequireForTools []string `json:"require_for_tools,omitempty" yaml:"require_for_tools,omitempty"`
	// ExemptTools never require confirmation.
	ExemptTools []string `json:"exempt_tools,omitempty" yaml:"exempt_tools,omitempty"`
	// RateLimit limits tool calls per second.
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures rate limiting.
type RateLimitConfig struct {
	// Enabled enables rate limiting.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Rate is the tokens per second.
	Rate int `json:"rate,omitempty" yaml:"rate,omitempty"`
	// Burst is the maximum burst size.
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// ResilienceConfig contains resilience settings.
type ResilienceConfig struct {
	// Retry configures retry behavior.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// CircuitBreaker configures circuit breaker behavior.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum attempts including the first (1 = no retry).
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// InitialDelay is the first retry delay.
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// Multiplier is the backoff multiplier.
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Threshold is consecutive faults before opening (0 = disabled).
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is console or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	// Tracing enables spans around tool calls.
	Tracing bool `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	// Exporter is stdout or otlp.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	// Endpoint is the OTLP gRPC endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Insecure disables TLS for OTLP.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	// SampleRate is the trace sampling ratio (0 = always).
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	// Metrics enables loop metrics.
	Metrics bool `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// AuditConfig configures the persistent progress log.
type AuditConfig struct {
	// Enabled stores every progress event.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// DSN is the sqlite database path.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// Default returns the default configuration.
func Default() AgentConfig {
	return AgentConfig{
		Name:    "omni",
		Version: "1",
		Agent: AgentSettings{
			MaxIterations:     20,
			PlannerTimeout:    Duration(90 * time.Second),
			SelectorTimeout:   Duration(90 * time.Second),
			ToolTimeout:       Duration(60 * time.Second),
			MinPlanSteps:      1,
			MaxPlanSteps:      7,
			MaxClarifications: 3,
			Persona:           DefaultPersona,
			Context: ContextConfig{
				MaxEntries:    32,
				MaxEntryBytes: 8 * 1024,
				MaxTotalBytes: 64 * 1024,
			},
		},
		Provider: ProviderConfig{
			Kind:        ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   2048,
		},
		Tools: ToolsConfig{
			Workspace: ".",
			Packs:     []string{"fileops", "shell", "git"},
			Shell: ShellConfig{
				Timeout: Duration(2 * time.Minute),
			},
		},
		Policy: PolicyConfig{
			Confirmation: "prompt",
		},
		Resilience: ResilienceConfig{
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: Duration(500 * time.Millisecond),
				Multiplier:   2,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: 5,
				Timeout:   Duration(30 * time.Second),
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Exporter: "stdout",
		},
		Audit: AuditConfig{
			DSN: "omni-history.db",
		},
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
