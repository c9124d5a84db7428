package application

import (
	"time"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/config"
	"github.com/felixgeelhaar/omni/domain/event"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/planner"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// Option configures the orchestrator.
type Option func(*OrchestratorConfig)

// WithRegistry sets the tool registry.
func WithRegistry(r tool.Registry) Option {
	return func(c *OrchestratorConfig) {
		c.Registry = r
	}
}

// WithPlanner sets the planner.
func WithPlanner(p planner.Planner) Option {
	return func(c *OrchestratorConfig) {
		c.Planner = p
	}
}

// WithSelector sets the action selector.
func WithSelector(s planner.Selector) Option {
	return func(c *OrchestratorConfig) {
		c.Selector = s
	}
}

// WithEvents sets the progress event publisher.
func WithEvents(p event.Publisher) Option {
	return func(c *OrchestratorConfig) {
		c.Events = p
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *OrchestratorConfig) {
		c.Metrics = m
	}
}

// WithMaxIterations sets the iteration budget.
func WithMaxIterations(n int) Option {
	return func(c *OrchestratorConfig) {
		c.MaxIterations = n
	}
}

// WithMaxClarifications caps the questions one run may ask.
func WithMaxClarifications(n int) Option {
	return func(c *OrchestratorConfig) {
		c.MaxClarifications = n
	}
}

// WithContextLimits bounds the working context.
func WithContextLimits(l agent.ContextLimits) Option {
	return func(c *OrchestratorConfig) {
		c.ContextLimits = l
	}
}

// WithModelTimeouts bounds single planner and selector calls.
func WithModelTimeouts(plannerTimeout, selectorTimeout time.Duration) Option {
	return func(c *OrchestratorConfig) {
		c.PlannerTimeout = plannerTimeout
		c.SelectorTimeout = selectorTimeout
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *OrchestratorConfig) {
		c.Now = now
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(newID func() string) Option {
	return func(c *OrchestratorConfig) {
		c.NewID = newID
	}
}

// WithAgentSettings applies the loop settings of a configuration file.
func WithAgentSettings(a config.AgentSettings) Option {
	return func(c *OrchestratorConfig) {
		c.MaxIterations = a.MaxIterations
		c.MaxClarifications = a.MaxClarifications
		c.PlannerTimeout = a.PlannerTimeout.Duration()
		c.SelectorTimeout = a.SelectorTimeout.Duration()
		c.ContextLimits = agent.ContextLimits{
			MaxEntries:    a.Context.MaxEntries,
			MaxEntryBytes: a.Context.MaxEntryBytes,
			MaxTotalBytes: a.Context.MaxTotalBytes,
		}
	}
}

// NewOrchestratorWithOptions creates an orchestrator with functional options.
func NewOrchestratorWithOptions(opts ...Option) (*Orchestrator, error) {
	config := OrchestratorConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	return NewOrchestrator(config)
}
