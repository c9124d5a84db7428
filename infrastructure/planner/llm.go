package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/infrastructure/logging"
	"github.com/felixgeelhaar/omni/infrastructure/prompt"
	"github.com/felixgeelhaar/omni/infrastructure/resilience"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// Model roles reported to metrics and logs.
const (
	RolePlanner  = "planner"
	RoleSelector = "selector"
)

// LLMConfig configures the LLM-backed planner and selector.
type LLMConfig struct {
	Provider    Provider
	Model       string
	Temperature float64
	MaxTokens   int

	// Prompts renders the prompts; nil uses the embedded defaults.
	Prompts *prompt.Builder
	// Caller wraps each call with timeout and retry; nil calls directly.
	Caller *resilience.Caller
	// Metrics records model calls; nil disables recording.
	Metrics telemetry.Metrics

	// MinSteps and MaxSteps bound an accepted plan.
	MinSteps int
	MaxSteps int
}

type llm struct {
	role     string
	provider Provider
	opts     SendOptions
	caller   *resilience.Caller
	metrics  telemetry.Metrics
}

func newLLM(role string, cfg LLMConfig) llm {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	return llm{
		role:     role,
		provider: cfg.Provider,
		opts:     SendOptions{Model: cfg.Model, Temperature: temperature, MaxTokens: maxTokens},
		caller:   cfg.Caller,
		metrics:  metrics,
	}
}

func (l llm) send(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	call := func(ctx context.Context) (string, error) {
		return Send(ctx, l.provider, system, user, l.opts)
	}

	var (
		out string
		err error
	)
	if l.caller != nil {
		out, err = l.caller.Call(ctx, call)
	} else {
		out, err = call(ctx)
	}

	elapsed := time.Since(start)
	l.metrics.RecordModelCall(ctx, l.role, err == nil, elapsed)

	var evt *logging.LogEvent
	if err != nil {
		evt = logging.Warn().Add(logging.ErrorField(err))
	} else {
		evt = logging.Debug()
	}
	evt.Add(logging.Component(l.role)).
		Add(logging.Provider(l.provider.Name())).
		Add(logging.Duration(elapsed)).
		Msg("model call finished")

	return out, err
}

// LLMPlanner produces a plan by prompting a model.
type LLMPlanner struct {
	llm
	prompts  *prompt.Builder
	minSteps int
	maxSteps int
}

// NewLLMPlanner creates a new LLM-based planner.
func NewLLMPlanner(cfg LLMConfig) *LLMPlanner {
	minSteps := cfg.MinSteps
	if minSteps <= 0 {
		minSteps = 1
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 7
	}
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = prompt.MustBuilder(prompt.WithPlanBounds(minSteps, maxSteps))
	}
	return &LLMPlanner{
		llm:      newLLM(RolePlanner, cfg),
		prompts:  prompts,
		minSteps: minSteps,
		maxSteps: maxSteps,
	}
}

// Plan implements the Planner interface.
func (p *LLMPlanner) Plan(ctx context.Context, req PlanRequest) (*agent.Plan, error) {
	msgs, err := p.prompts.Plan(req.Goal, req.Strict)
	if err != nil {
		return nil, err
	}

	logging.Debug().
		Add(logging.Attempt(req.Attempt)).
		Add(logging.Bool("strict", req.Strict)).
		Msg("requesting plan")

	out, err := p.send(ctx, msgs.System, msgs.User)
	if err != nil {
		return nil, err
	}

	plan, err := ParsePlan(out, p.minSteps, p.maxSteps)
	if err != nil {
		return nil, fmt.Errorf("unusable plan: %w", err)
	}
	return plan, nil
}

// LLMSelector picks the next action by prompting a model.
type LLMSelector struct {
	llm
	prompts *prompt.Builder
}

// NewLLMSelector creates a new LLM-based action selector.
func NewLLMSelector(cfg LLMConfig) *LLMSelector {
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = prompt.MustBuilder()
	}
	return &LLMSelector{
		llm:     newLLM(RoleSelector, cfg),
		prompts: prompts,
	}
}

// Select implements the Selector interface.
func (s *LLMSelector) Select(ctx context.Context, req SelectRequest) (agent.Decision, error) {
	system, err := s.prompts.SelectorSystem()
	if err != nil {
		return agent.Decision{}, err
	}
	user, err := s.prompts.Select(req.Snapshot, req.Tools)
	if err != nil {
		return agent.Decision{}, err
	}

	out, err := s.send(ctx, system, user)
	if err != nil {
		return agent.Decision{}, err
	}

	decision := ParseDecision(out)
	logging.Debug().
		Add(logging.Iteration(req.Snapshot.Iteration)).
		Add(logging.Decision(decision.Kind)).
		Msg("selector decision received")
	return decision, nil
}
