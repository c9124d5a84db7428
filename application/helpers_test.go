package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/omni/application"
	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/event"
	"github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/tool"
	infevent "github.com/felixgeelhaar/omni/infrastructure/event"
	"github.com/felixgeelhaar/omni/infrastructure/planner"
	"github.com/felixgeelhaar/omni/infrastructure/resilience"
	"github.com/felixgeelhaar/omni/infrastructure/storage/memory"
)

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// harness bundles an orchestrator with its recorded progress stream.
type harness struct {
	orch     *application.Orchestrator
	recorder *infevent.Recorder
	registry *memory.ToolRegistry
}

type harnessConfig struct {
	tools      []tool.Tool
	middleware []middleware.Middleware
	planner    planner.Planner
	selector   planner.Selector
	maxIter    int
	extra      []application.Option
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()

	registry := memory.NewToolRegistry(
		memory.WithExecutor(resilience.NewExecutorWithOptions(
			resilience.WithTimeout(time.Second),
			resilience.WithRetryDelay(time.Millisecond),
		)),
		memory.WithMiddleware(cfg.middleware...),
	)
	registry.MustRegister(cfg.tools...)

	if cfg.planner == nil {
		cfg.planner = planner.NewScriptedPlanner(planner.PlanOutcome{Steps: []string{
			"Reproduce the failure",
			"Fix the code",
			"Verify the fix",
		}})
	}
	if cfg.maxIter == 0 {
		cfg.maxIter = 10
	}

	recorder := infevent.NewRecorder()
	opts := []application.Option{
		application.WithRegistry(registry),
		application.WithPlanner(cfg.planner),
		application.WithSelector(cfg.selector),
		application.WithEvents(recorder),
		application.WithMaxIterations(cfg.maxIter),
		application.WithClock(func() time.Time { return fixedTime }),
		application.WithRunIDs(func() string { return "run-1" }),
	}
	orch, err := application.NewOrchestratorWithOptions(append(opts, cfg.extra...)...)
	if err != nil {
		t.Fatalf("NewOrchestratorWithOptions() error = %v", err)
	}
	return &harness{orch: orch, recorder: recorder, registry: registry}
}

func mustTool(t *testing.T, b *tool.Builder) tool.Tool {
	t.Helper()
	tl, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return tl
}

// flakyTool fails with errText on its first call and succeeds afterwards.
func flakyTool(t *testing.T, name, errText string, calls *atomic.Int32) tool.Tool {
	return mustTool(t, tool.NewBuilder(name).
		WithDescription("Run a shell command").
		WithParam("command", tool.RequiredParam(tool.TypeString, "command line")).
		WithHandler(func(_ context.Context, _ json.RawMessage) (tool.Result, error) {
			if calls.Add(1) == 1 {
				return tool.Result{}, errors.New(errText)
			}
			return tool.Success("2 passed"), nil
		}))
}

// staticTool always succeeds with output.
func staticTool(t *testing.T, name, output string, calls *atomic.Int32) tool.Tool {
	return mustTool(t, tool.NewBuilder(name).
		WithDescription("Edit a file").
		WithHandler(func(context.Context, json.RawMessage) (tool.Result, error) {
			calls.Add(1)
			return tool.Success(output), nil
		}))
}

func invoke(name string, args map[string]any, stepID string) agent.Decision {
	return agent.NewInvokeDecision(tool.Invocation{Tool: name, Args: args, StepID: stepID})
}

// lastFailure checks that the snapshot carries a failed last action whose
// error text is exactly want.
func lastFailure(want string) func(planner.SelectRequest) error {
	return func(req planner.SelectRequest) error {
		last := req.Snapshot.LastAction
		if last == nil || !last.Failed() {
			return errors.New("expected a failed last action")
		}
		if got := last.Result.ErrorText(); got != want {
			return errors.New("error text = " + got)
		}
		return nil
	}
}

func assertCategories(t *testing.T, r *infevent.Recorder, want ...string) {
	t.Helper()
	got := r.Categories()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("categories =\n  %v\nwant\n  %v", got, want)
	}
}

// assertWellFormedStream checks sequence numbering and state chaining.
func assertWellFormedStream(t *testing.T, events []event.Event) {
	t.Helper()
	for i, e := range events {
		if err := e.Validate(); err != nil {
			t.Errorf("events[%d]: %v", i, err)
		}
		if e.Sequence != uint64(i+1) {
			t.Errorf("events[%d].Sequence = %d, want %d", i, e.Sequence, i+1)
		}
		if i == 0 {
			if e.From != agent.StatePlanning {
				t.Errorf("first event starts in %s", e.From)
			}
			continue
		}
		if prev := events[i-1]; prev.To != e.From {
			t.Errorf("events[%d] starts in %s but previous ended in %s", i, e.From, prev.To)
		}
		if !agent.CanTransition(e.From, e.To) {
			t.Errorf("events[%d]: illegal transition %s -> %s", i, e.From, e.To)
		}
	}
}

func stepStatus(steps []agent.Step, id string) agent.StepStatus {
	for _, s := range steps {
		if s.ID == id {
			return s.Status
		}
	}
	return ""
}

func assertNoCheckErrors(t *testing.T, s *planner.ScriptedSelector) {
	t.Helper()
	for _, err := range s.CheckErrors() {
		t.Error(err)
	}
}
