package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	domainmw "github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/policy"
	"github.com/felixgeelhaar/omni/domain/tool"
	mw "github.com/felixgeelhaar/omni/infrastructure/middleware"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// mockTool implements tool.Tool for testing.
type mockTool struct {
	name        string
	annotations tool.Annotations
}

func (m *mockTool) Name() string                  { return m.name }
func (m *mockTool) Description() string           { return "mock tool" }
func (m *mockTool) Parameters() tool.Schema       { return tool.Schema{} }
func (m *mockTool) Annotations() tool.Annotations { return m.annotations }
func (m *mockTool) Execute(context.Context, json.RawMessage) (tool.Result, error) {
	return tool.Success("ok"), nil
}

func execCtx(name string, annotations tool.Annotations) *domainmw.ExecutionContext {
	return &domainmw.ExecutionContext{
		RunID:     "run-1",
		Iteration: 2,
		StepID:    "step-1",
		Tool:      &mockTool{name: name, annotations: annotations},
		Args:      map[string]any{"path": "a.go"},
		Input:     json.RawMessage(`{"path":"a.go"}`),
	}
}

// countingHandler returns a handler that counts calls and returns result.
func countingHandler(calls *int, result tool.Result) domainmw.Handler {
	return func(context.Context, *domainmw.ExecutionContext) (tool.Result, error) {
		*calls++
		return result, nil
	}
}

func TestConfirmation(t *testing.T) {
	t.Parallel()

	failing := policy.ConfirmFunc(func(context.Context, policy.ConfirmationRequest) (bool, error) {
		return true, errors.New("stdin closed")
	})

	tests := []struct {
		name        string
		annotations tool.Annotations
		confirmer   policy.Confirmer
		policy      policy.ConfirmationPolicy
		wantRun     bool
		wantDecline bool
	}{
		{
			name:        "low risk runs without asking",
			annotations: tool.Annotations{ReadOnly: true},
			wantRun:     true,
		},
		{
			name:        "destructive approved",
			annotations: tool.Annotations{Destructive: true},
			confirmer:   policy.AutoConfirmer{},
			wantRun:     true,
		},
		{
			name:        "destructive declined",
			annotations: tool.Annotations{Destructive: true},
			confirmer:   policy.DenyConfirmer{},
			wantDecline: true,
		},
		{
			name:        "high risk without confirmer",
			annotations: tool.Annotations{RiskLevel: tool.RiskHigh},
			wantDecline: true,
		},
		{
			name:        "confirmer error declines",
			annotations: tool.Annotations{RequiresConfirmation: true},
			confirmer:   failing,
			wantDecline: true,
		},
		{
			name:        "exempt tool skips gate",
			annotations: tool.Annotations{Destructive: true},
			policy:      policy.ConfirmationPolicy{ExemptTools: []string{"target"}},
			wantRun:     true,
		},
		{
			name:        "required tool asks even when low risk",
			annotations: tool.Annotations{ReadOnly: true},
			policy:      policy.ConfirmationPolicy{RequireForTools: []string{"target"}},
			confirmer:   policy.DenyConfirmer{},
			wantDecline: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			h := mw.Confirmation(mw.ConfirmationConfig{Confirmer: tt.confirmer, Policy: tt.policy})(
				countingHandler(&calls, tool.Success("done")))

			res, err := h(context.Background(), execCtx("target", tt.annotations))

			if tt.wantDecline {
				if !errors.Is(err, tool.ErrConfirmationDeclined) {
					t.Fatalf("error = %v, want ErrConfirmationDeclined", err)
				}
			} else if err != nil {
				t.Fatalf("error = %v", err)
			}
			if ran := calls == 1; ran != tt.wantRun {
				t.Errorf("handler ran = %v, want %v", ran, tt.wantRun)
			}
			if tt.wantRun && !res.IsSuccess() {
				t.Errorf("result = %v, want success", res)
			}
		})
	}
}

func TestConfirmation_RequestCarriesCall(t *testing.T) {
	t.Parallel()

	var got policy.ConfirmationRequest
	confirmer := policy.ConfirmFunc(func(_ context.Context, req policy.ConfirmationRequest) (bool, error) {
		got = req
		return true, nil
	})
	calls := 0
	h := mw.Confirmation(mw.ConfirmationConfig{Confirmer: confirmer})(countingHandler(&calls, tool.Success("")))

	if _, err := h(context.Background(), execCtx("delete_file", tool.Annotations{Destructive: true, RiskLevel: tool.RiskHigh})); err != nil {
		t.Fatalf("error = %v", err)
	}
	if got.ToolName != "delete_file" || got.RunID != "run-1" || got.RiskLevel != "high" {
		t.Errorf("request = %+v", got)
	}
	if got.Args["path"] != "a.go" {
		t.Errorf("request args = %v", got.Args)
	}
}

func TestBudget(t *testing.T) {
	t.Parallel()

	budget := policy.NewBudget(map[string]int{"run_command": 2, policy.TotalCalls: 3})
	calls := 0
	h := mw.Budget(mw.BudgetConfig{Budget: budget})(countingHandler(&calls, tool.Success("")))

	for i := 0; i < 2; i++ {
		if _, err := h(context.Background(), execCtx("run_command", tool.Annotations{})); err != nil {
			t.Fatalf("call %d error = %v", i+1, err)
		}
	}

	_, err := h(context.Background(), execCtx("run_command", tool.Annotations{}))
	if !errors.Is(err, policy.ErrBudgetExceeded) {
		t.Fatalf("third run_command error = %v, want ErrBudgetExceeded", err)
	}
	if err.Error() != "call limit reached for tool 'run_command': budget exceeded" {
		t.Errorf("Error() = %q", err.Error())
	}

	if _, err := h(context.Background(), execCtx("read_file", tool.Annotations{})); err != nil {
		t.Fatalf("read_file error = %v, want allowed by total limit", err)
	}
	if _, err := h(context.Background(), execCtx("read_file", tool.Annotations{})); !errors.Is(err, policy.ErrBudgetExceeded) {
		t.Errorf("fourth call error = %v, want total limit reached", err)
	}
	if calls != 3 {
		t.Errorf("handler ran %d times, want 3", calls)
	}
}

func TestBudget_NilBudgetPassesThrough(t *testing.T) {
	t.Parallel()

	calls := 0
	h := mw.Budget(mw.BudgetConfig{})(countingHandler(&calls, tool.Success("")))
	if _, err := h(context.Background(), execCtx("x", tool.Annotations{})); err != nil || calls != 1 {
		t.Errorf("error = %v, calls = %d", err, calls)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		scope     mw.RateLimitScope
		second    string
		wantAllow bool
	}{
		{"global shares bucket", mw.ScopeGlobal, "other", false},
		{"per tool separates buckets", mw.ScopePerTool, "other", true},
		{"per tool same tool", mw.ScopePerTool, "first", false},
		{"per run shares bucket", mw.ScopePerRun, "other", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			h := mw.RateLimit(mw.RateLimitConfig{Scope: tt.scope, Rate: 1, Burst: 1})(
				countingHandler(&calls, tool.Success("")))

			if _, err := h(context.Background(), execCtx("first", tool.Annotations{})); err != nil {
				t.Fatalf("first call error = %v", err)
			}
			_, err := h(context.Background(), execCtx(tt.second, tool.Annotations{}))
			if tt.wantAllow && err != nil {
				t.Errorf("second call error = %v, want allowed", err)
			}
			if !tt.wantAllow && !errors.Is(err, policy.ErrRateLimitExceeded) {
				t.Errorf("second call error = %v, want ErrRateLimitExceeded", err)
			}
		})
	}
}

func TestLogging_PassesResultThrough(t *testing.T) {
	t.Parallel()

	for _, want := range []tool.Result{tool.Success("contents"), tool.Failure("file not found")} {
		calls := 0
		h := mw.Logging(mw.LoggingConfig{LogInput: true, LogOutput: true})(countingHandler(&calls, want))
		got, err := h(context.Background(), execCtx("read_file", tool.Annotations{}))
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if got.String() != want.String() {
			t.Errorf("result = %v, want %v", got, want)
		}
	}
}

func TestTracing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    domainmw.Handler
		wantStatus codes.Code
	}{
		{
			name: "success",
			handler: func(context.Context, *domainmw.ExecutionContext) (tool.Result, error) {
				return tool.Success("hello"), nil
			},
			wantStatus: codes.Ok,
		},
		{
			name: "failure result",
			handler: func(context.Context, *domainmw.ExecutionContext) (tool.Result, error) {
				return tool.Failure("no such file"), nil
			},
			wantStatus: codes.Error,
		},
		{
			name: "rejected call",
			handler: func(context.Context, *domainmw.ExecutionContext) (tool.Result, error) {
				return tool.Result{}, tool.ErrConfirmationDeclined
			},
			wantStatus: codes.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			recorder := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

			cfg := mw.DefaultTracingConfig()
			cfg.Tracer = tp.Tracer("test")
			_, _ = mw.Tracing(cfg)(tt.handler)(context.Background(), execCtx("read_file", tool.Annotations{ReadOnly: true}))

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("recorded %d spans, want 1", len(spans))
			}
			if spans[0].Name() != "tool.read_file" {
				t.Errorf("span name = %q, want tool.read_file", spans[0].Name())
			}
			if spans[0].Status().Code != tt.wantStatus {
				t.Errorf("span status = %v, want %v", spans[0].Status().Code, tt.wantStatus)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := telemetry.NewMetricsProvider(telemetry.MetricsConfig{MeterProvider: provider})
	if err != nil {
		t.Fatalf("NewMetricsProvider() error = %v", err)
	}

	calls := 0
	h := mw.Metrics(m)(countingHandler(&calls, tool.Success("")))
	for i := 0; i < 3; i++ {
		_, _ = h(context.Background(), execCtx("read_file", tool.Annotations{}))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	for _, total := range telemetry.Totals(rm) {
		if total.Name == telemetry.MetricToolCalls && total.Value != 3 {
			t.Errorf("%s = %d, want 3", total.Name, total.Value)
		}
	}
}

func TestChain_GateRunsBeforeBudget(t *testing.T) {
	t.Parallel()

	budget := policy.NewBudget(map[string]int{"delete_file": 1})
	calls := 0
	chain := domainmw.Chain(
		mw.Confirmation(mw.ConfirmationConfig{Confirmer: policy.DenyConfirmer{}}),
		mw.Budget(mw.BudgetConfig{Budget: budget}),
		mw.Logging(mw.LoggingConfig{}),
	)
	h := chain(countingHandler(&calls, tool.Success("")))

	_, err := h(context.Background(), execCtx("delete_file", tool.Annotations{Destructive: true}))
	if !errors.Is(err, tool.ErrConfirmationDeclined) {
		t.Fatalf("error = %v, want declined", err)
	}
	if calls != 0 {
		t.Errorf("handler ran %d times after a decline", calls)
	}
	if budget.Remaining("delete_file") != 1 {
		t.Errorf("declined call consumed budget: remaining %d", budget.Remaining("delete_file"))
	}
}
