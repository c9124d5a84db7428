package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/omni/application"
	"github.com/felixgeelhaar/omni/domain/config"
	"github.com/felixgeelhaar/omni/domain/event"
	domainmw "github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/pack"
	"github.com/felixgeelhaar/omni/domain/policy"
	infraevent "github.com/felixgeelhaar/omni/infrastructure/event"
	mw "github.com/felixgeelhaar/omni/infrastructure/middleware"
	infrapack "github.com/felixgeelhaar/omni/infrastructure/pack"
	"github.com/felixgeelhaar/omni/infrastructure/planner"
	"github.com/felixgeelhaar/omni/infrastructure/resilience"
	"github.com/felixgeelhaar/omni/infrastructure/storage/memory"
	"github.com/felixgeelhaar/omni/infrastructure/storage/sqlite"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// runtimeDeps are the interactive collaborators of a runtime.
type runtimeDeps struct {
	// Confirmer answers confirmation requests.
	Confirmer policy.Confirmer
	// Sink receives progress events, usually the renderer.
	Sink event.Publisher
	// Provider replaces the configured inference provider.
	Provider planner.Provider
}

// runtime is one fully wired assistant.
type runtime struct {
	cfg          *config.AgentConfig
	orchestrator *application.Orchestrator
	registry     *memory.ToolRegistry
	packs        []*pack.Pack
	telemetry    *telemetry.Provider
	publisher    *infraevent.Publisher
	store        *sqlite.EventStore
}

// newRuntime assembles the tool registry, models and orchestrator described
// by cfg.
func newRuntime(ctx context.Context, cfg *config.AgentConfig, deps runtimeDeps) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	rt.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{
		ServiceName:    "omni",
		ServiceVersion: Version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	metrics := rt.telemetry.Metrics()

	rt.registry = newToolRegistry(cfg, deps.Confirmer, rt.telemetry)
	rt.packs, err = infrapack.DefaultRegistry().Install(rt.registry, cfg)
	if err != nil {
		return nil, err
	}

	var models *planner.Models
	if deps.Provider != nil {
		models, err = planner.NewModelsWithProvider(deps.Provider, cfg, metrics)
	} else {
		models, err = planner.NewModels(cfg, metrics)
	}
	if err != nil {
		return nil, err
	}

	pubOpts := []infraevent.PublisherOption{infraevent.WithSink(deps.Sink)}
	if cfg.Audit.Enabled {
		rt.store, err = sqlite.NewEventStore(sqlite.DefaultConfig(cfg.Audit.DSN))
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		pubOpts = append(pubOpts, infraevent.WithStore(rt.store))
	}
	rt.publisher = infraevent.NewPublisher(pubOpts...)

	rt.orchestrator, err = application.NewOrchestratorWithOptions(
		application.WithRegistry(rt.registry),
		application.WithPlanner(models.Planner),
		application.WithSelector(models.Selector),
		application.WithEvents(rt.publisher),
		application.WithMetrics(metrics),
		application.WithAgentSettings(cfg.Agent),
	)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// newToolRegistry builds the registry with the resilient executor and the
// middleware chain, outermost first.
func newToolRegistry(cfg *config.AgentConfig, confirmer policy.Confirmer, tp *telemetry.Provider) *memory.ToolRegistry {
	executor := resilience.NewExecutor(resilience.ExecutorConfigFrom(cfg))

	var chain []domainmw.Middleware
	if cfg.Telemetry.Tracing {
		tracing := mw.DefaultTracingConfig()
		tracing.Tracer = tp.Tracer()
		chain = append(chain, mw.Tracing(tracing))
	}
	chain = append(chain,
		mw.Logging(mw.LoggingConfig{}),
		mw.Metrics(tp.Metrics()),
		mw.Confirmation(mw.ConfirmationConfig{
			Confirmer: confirmer,
			Policy: policy.ConfirmationPolicy{
				RequireForTools: cfg.Policy.RequireForTools,
				ExemptTools:     cfg.Policy.ExemptTools,
			},
		}),
	)
	if len(cfg.Tools.CallLimits) > 0 {
		chain = append(chain, mw.Budget(mw.BudgetConfig{
			Budget:  policy.NewBudget(cfg.Tools.CallLimits),
			Metrics: tp.Metrics(),
		}))
	}
	if rl := cfg.Policy.RateLimit; rl.Enabled {
		chain = append(chain, mw.RateLimit(mw.RateLimitConfig{
			Scope:   mw.ScopePerTool,
			Rate:    rl.Rate,
			Burst:   rl.Burst,
			Metrics: tp.Metrics(),
		}))
	}

	return memory.NewToolRegistry(
		memory.WithExecutor(executor),
		memory.WithMiddleware(chain...),
	)
}

// Close flushes progress events and releases the audit log and exporters.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.publisher != nil {
		errs = append(errs, rt.publisher.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
