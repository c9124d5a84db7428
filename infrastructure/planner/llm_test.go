package planner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/resilience"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// recordingMetrics captures model calls.
type recordingMetrics struct {
	telemetry.NoopMetrics
	mu    sync.Mutex
	calls []string
}

func (m *recordingMetrics) RecordModelCall(_ context.Context, role string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	m.calls = append(m.calls, role+":"+outcome)
}

func (m *recordingMetrics) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func TestLLMPlanner_Plan(t *testing.T) {
	t.Parallel()

	provider := NewMockProvider(MockResponse{Content: "```json\n{\"steps\": [\"Inspect\", \"Fix\", \"Verify\"]}\n```"})
	metrics := &recordingMetrics{}
	p := NewLLMPlanner(LLMConfig{Provider: provider, Model: "m", Metrics: metrics})

	plan, err := p.Plan(context.Background(), PlanRequest{Goal: "fix the bug", Attempt: 1})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Len() != 3 {
		t.Fatalf("plan.Len() = %d, want 3", plan.Len())
	}

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].Model != "m" {
		t.Errorf("Model = %s, want m", reqs[0].Model)
	}
	if !strings.Contains(reqs[0].Messages[1].Content, "fix the bug") {
		t.Errorf("user message missing goal: %q", reqs[0].Messages[1].Content)
	}
	if got := metrics.recorded(); len(got) != 1 || got[0] != "planner:ok" {
		t.Errorf("metrics = %v, want [planner:ok]", got)
	}
}

func TestLLMPlanner_StrictPrompt(t *testing.T) {
	t.Parallel()

	provider := NewMockProvider(MockResponse{Content: `{"steps": ["one"]}`})
	p := NewLLMPlanner(LLMConfig{Provider: provider})

	if _, err := p.Plan(context.Background(), PlanRequest{Goal: "g", Strict: true, Attempt: 2}); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	system := provider.Requests()[0].Messages[0].Content
	if !strings.Contains(system, "STRICT FORMAT") {
		t.Errorf("strict request missing strict instruction: %q", system)
	}
}

func TestLLMPlanner_Errors(t *testing.T) {
	t.Parallel()

	transport := errors.New("dial tcp: connection refused")

	tests := []struct {
		name    string
		reply   MockResponse
		wantErr error
	}{
		{name: "transport failure", reply: MockResponse{Err: transport}, wantErr: transport},
		{name: "unparseable", reply: MockResponse{Content: "here is my plan: do it"}, wantErr: ErrNoJSON},
		{name: "oversized", reply: MockResponse{Content: `{"steps": ["1","2","3","4","5","6","7","8"]}`}, wantErr: ErrPlanSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			metrics := &recordingMetrics{}
			p := NewLLMPlanner(LLMConfig{Provider: NewMockProvider(tt.reply), Metrics: metrics})
			_, err := p.Plan(context.Background(), PlanRequest{Goal: "g", Attempt: 1})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Plan() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLLMPlanner_CallerRetriesTransport(t *testing.T) {
	t.Parallel()

	provider := NewMockProvider(
		MockResponse{Err: errors.New("503")},
		MockResponse{Content: `{"steps": ["one", "two"]}`},
	)
	caller := resilience.NewCaller(resilience.CallerConfig{
		Name:         RolePlanner,
		Timeout:      time.Second,
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	})
	p := NewLLMPlanner(LLMConfig{Provider: provider, Caller: caller})

	plan, err := p.Plan(context.Background(), PlanRequest{Goal: "g", Attempt: 1})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Len() != 2 {
		t.Errorf("plan.Len() = %d, want 2", plan.Len())
	}
	if n := len(provider.Requests()); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func newSnapshot(t *testing.T) agent.Snapshot {
	t.Helper()
	state, err := agent.NewAgentState("add logging", 5, agent.DefaultContextLimits())
	if err != nil {
		t.Fatalf("NewAgentState() error = %v", err)
	}
	plan, _ := agent.NewPlan([]string{"find entrypoint", "add logger"})
	if err := state.SetPlan(plan); err != nil {
		t.Fatalf("SetPlan() error = %v", err)
	}
	if err := state.RecordResult(
		tool.Invocation{Tool: "read_file", Args: map[string]any{"path": "main.go"}},
		tool.Failure("open main.go: no such file or directory"),
	); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}
	return state.Snapshot()
}

func TestLLMSelector_Select(t *testing.T) {
	t.Parallel()

	provider := NewMockProvider(MockResponse{
		Content: `I will list the directory. {"action": "invoke", "tool": "list_dir", "args": {"path": "."}, "step_id": "step-1"}`,
	})
	metrics := &recordingMetrics{}
	s := NewLLMSelector(LLMConfig{Provider: provider, Metrics: metrics})

	d, err := s.Select(context.Background(), SelectRequest{
		Snapshot: newSnapshot(t),
		Tools: []tool.Descriptor{{
			Name:       "list_dir",
			Parameters: tool.Schema{"path": tool.RequiredParam(tool.TypeString, "dir")},
		}},
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if d.Kind != agent.DecisionInvoke || d.Invocation.Tool != "list_dir" || d.Invocation.StepID != "step-1" {
		t.Fatalf("decision = %+v", d)
	}

	user := provider.Requests()[0].Messages[1].Content
	if !strings.Contains(user, "open main.go: no such file or directory") {
		t.Errorf("selector prompt missing verbatim failure text:\n%s", user)
	}
	if got := metrics.recorded(); len(got) != 1 || got[0] != "selector:ok" {
		t.Errorf("metrics = %v, want [selector:ok]", got)
	}
}

func TestLLMSelector_MalformedIsNotAnError(t *testing.T) {
	t.Parallel()

	s := NewLLMSelector(LLMConfig{Provider: NewMockProvider(MockResponse{Content: "no idea"})})
	d, err := s.Select(context.Background(), SelectRequest{Snapshot: newSnapshot(t)})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if d.Kind != agent.DecisionMalformed {
		t.Errorf("Kind = %s, want malformed", d.Kind)
	}
	if !strings.HasPrefix(d.FailureText(), agent.MalformedText) {
		t.Errorf("FailureText() = %q", d.FailureText())
	}
}

func TestLLMSelector_TransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("timeout awaiting response headers")
	metrics := &recordingMetrics{}
	s := NewLLMSelector(LLMConfig{Provider: NewMockProvider(MockResponse{Err: boom}), Metrics: metrics})

	_, err := s.Select(context.Background(), SelectRequest{Snapshot: newSnapshot(t)})
	if !errors.Is(err, boom) {
		t.Fatalf("Select() error = %v, want %v", err, boom)
	}
	if got := metrics.recorded(); len(got) != 1 || got[0] != "selector:failed" {
		t.Errorf("metrics = %v, want [selector:failed]", got)
	}
}

func TestLLMSelector_Deterministic(t *testing.T) {
	t.Parallel()

	reply := `{"action": "invoke", "tool": "read_file", "args": {"path": "a.go"}}`
	provider := NewMockProvider(MockResponse{Content: reply})
	s := NewLLMSelector(LLMConfig{Provider: provider})
	snap := newSnapshot(t)

	first, err := s.Select(context.Background(), SelectRequest{Snapshot: snap})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	second, err := s.Select(context.Background(), SelectRequest{Snapshot: snap})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if first.Kind != second.Kind || first.Invocation.Tool != second.Invocation.Tool {
		t.Errorf("decisions differ: %+v vs %+v", first, second)
	}
	reqs := provider.Requests()
	if reqs[0].Messages[1].Content != reqs[1].Messages[1].Content {
		t.Error("identical snapshots produced different prompts")
	}
}
