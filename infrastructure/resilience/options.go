package resilience

import (
	"time"

	"github.com/felixgeelhaar/omni/domain/config"
)

// Option configures the executor.
type Option func(*ExecutorConfig)

// WithMaxConcurrent sets the maximum concurrent executions.
func WithMaxConcurrent(n int) Option {
	return func(c *ExecutorConfig) {
		c.MaxConcurrent = n
	}
}

// WithCircuitBreakerThreshold sets the fault threshold of each tool's breaker.
func WithCircuitBreakerThreshold(n int) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerThreshold = n
	}
}

// WithCircuitBreakerTimeout sets the circuit breaker open duration.
func WithCircuitBreakerTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerTimeout = d
	}
}

// WithRetryAttempts sets the maximum attempts for retryable tools.
func WithRetryAttempts(n int) Option {
	return func(c *ExecutorConfig) {
		c.RetryMaxAttempts = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.RetryInitialDelay = d
	}
}

// WithTimeout sets the default execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.DefaultTimeout = d
	}
}

// NewExecutorWithOptions creates an executor with the given options.
func NewExecutorWithOptions(opts ...Option) *Executor {
	cfg := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewExecutor(cfg)
}

// ExecutorConfigFrom maps the assistant configuration onto executor settings.
func ExecutorConfigFrom(cfg *config.AgentConfig) ExecutorConfig {
	out := DefaultExecutorConfig()
	if d := cfg.Agent.ToolTimeout.Duration(); d > 0 {
		out.DefaultTimeout = d
	}
	r := cfg.Resilience.Retry
	if r.MaxAttempts > 0 {
		out.RetryMaxAttempts = r.MaxAttempts
	}
	if d := r.InitialDelay.Duration(); d > 0 {
		out.RetryInitialDelay = d
	}
	if r.Multiplier > 0 {
		out.RetryBackoffMultiplier = r.Multiplier
	}
	cb := cfg.Resilience.CircuitBreaker
	out.CircuitBreakerThreshold = cb.Threshold
	if d := cb.Timeout.Duration(); d > 0 {
		out.CircuitBreakerTimeout = d
	}
	return out
}
