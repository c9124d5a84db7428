// Package telemetry provides OpenTelemetry tracing and metrics for the
// execution loop.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics defines the interface for loop metrics.
type Metrics interface {
	RecordToolCall(ctx context.Context, toolName string, success bool, duration time.Duration)
	RecordTransition(ctx context.Context, from, to string)
	RecordSelfCorrection(ctx context.Context, toolName string)
	RecordModelCall(ctx context.Context, role string, success bool, duration time.Duration)
	RecordRunDuration(ctx context.Context, duration time.Duration, finalState string, iterations int)
	RecordBudgetDenial(ctx context.Context, toolName string)
	RecordRateLimitHit(ctx context.Context, toolName string)
	IncrementActiveRuns(ctx context.Context)
	DecrementActiveRuns(ctx context.Context)
}

// Metric names.
const (
	MetricToolCalls        = "omni.tool.calls"
	MetricToolDuration     = "omni.tool.duration"
	MetricTransitions      = "omni.loop.transitions"
	MetricSelfCorrections  = "omni.loop.self_corrections"
	MetricModelCalls       = "omni.model.calls"
	MetricModelDuration    = "omni.model.duration"
	MetricRunDuration      = "omni.run.duration"
	MetricRunIterations    = "omni.run.iterations"
	MetricBudgetDenials    = "omni.budget.denials"
	MetricRateLimitHits    = "omni.ratelimit.hits"
	MetricActiveRuns       = "omni.runs.active"
	defaultMeterName       = "github.com/felixgeelhaar/omni"
	defaultInstrumentation = "1.0.0"
)

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the instrumentation scope name.
	MeterName string
	// MeterVersion is the instrumentation scope version.
	MeterVersion string
	// MeterProvider overrides the global provider.
	MeterProvider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    defaultMeterName,
		MeterVersion: defaultInstrumentation,
	}
}

// MetricsProvider records loop metrics with OpenTelemetry instruments.
type MetricsProvider struct {
	toolCalls       metric.Int64Counter
	toolDuration    metric.Float64Histogram
	transitions     metric.Int64Counter
	selfCorrections metric.Int64Counter
	modelCalls      metric.Int64Counter
	modelDuration   metric.Float64Histogram
	runDuration     metric.Float64Histogram
	runIterations   metric.Int64Histogram
	budgetDenials   metric.Int64Counter
	rateLimitHits   metric.Int64Counter
	activeRuns      metric.Int64UpDownCounter
}

// NewMetricsProvider creates the instruments.
func NewMetricsProvider(cfg MetricsConfig) (*MetricsProvider, error) {
	if cfg.MeterName == "" {
		cfg.MeterName = defaultMeterName
	}
	provider := cfg.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(cfg.MeterName, metric.WithInstrumentationVersion(cfg.MeterVersion))

	mp := &MetricsProvider{}
	var err error

	if mp.toolCalls, err = meter.Int64Counter(MetricToolCalls,
		metric.WithDescription("Number of tool calls"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if mp.toolDuration, err = meter.Float64Histogram(MetricToolDuration,
		metric.WithDescription("Duration of tool calls"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if mp.transitions, err = meter.Int64Counter(MetricTransitions,
		metric.WithDescription("Number of loop state transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if mp.selfCorrections, err = meter.Int64Counter(MetricSelfCorrections,
		metric.WithDescription("Number of failures fed back to the selector"),
		metric.WithUnit("{failure}")); err != nil {
		return nil, err
	}
	if mp.modelCalls, err = meter.Int64Counter(MetricModelCalls,
		metric.WithDescription("Number of planner and selector calls"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if mp.modelDuration, err = meter.Float64Histogram(MetricModelDuration,
		metric.WithDescription("Duration of planner and selector calls"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if mp.runDuration, err = meter.Float64Histogram(MetricRunDuration,
		metric.WithDescription("Duration of runs"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if mp.runIterations, err = meter.Int64Histogram(MetricRunIterations,
		metric.WithDescription("Iterations used per run"),
		metric.WithUnit("{iteration}")); err != nil {
		return nil, err
	}
	if mp.budgetDenials, err = meter.Int64Counter(MetricBudgetDenials,
		metric.WithDescription("Tool calls refused by a call limit"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if mp.rateLimitHits, err = meter.Int64Counter(MetricRateLimitHits,
		metric.WithDescription("Tool calls refused by the rate limiter"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if mp.activeRuns, err = meter.Int64UpDownCounter(MetricActiveRuns,
		metric.WithDescription("Runs in progress"),
		metric.WithUnit("{run}")); err != nil {
		return nil, err
	}

	return mp, nil
}

// RecordToolCall records one dispatched tool call.
func (mp *MetricsProvider) RecordToolCall(ctx context.Context, toolName string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.Bool("success", success),
	)
	mp.toolCalls.Add(ctx, 1, attrs)
	mp.toolDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordTransition records a loop state transition.
func (mp *MetricsProvider) RecordTransition(ctx context.Context, from, to string) {
	mp.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state.from", from),
		attribute.String("state.to", to),
	))
}

// RecordSelfCorrection records a failure handed back to the selector.
func (mp *MetricsProvider) RecordSelfCorrection(ctx context.Context, toolName string) {
	mp.selfCorrections.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", toolName)))
}

// RecordModelCall records one planner or selector call.
func (mp *MetricsProvider) RecordModelCall(ctx context.Context, role string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("model.role", role),
		attribute.Bool("success", success),
	)
	mp.modelCalls.Add(ctx, 1, attrs)
	mp.modelDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordRunDuration records a finished or suspended run.
func (mp *MetricsProvider) RecordRunDuration(ctx context.Context, duration time.Duration, finalState string, iterations int) {
	attrs := metric.WithAttributes(attribute.String("state.final", finalState))
	mp.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	mp.runIterations.Record(ctx, int64(iterations), attrs)
}

// RecordBudgetDenial records a call refused by a call limit.
func (mp *MetricsProvider) RecordBudgetDenial(ctx context.Context, toolName string) {
	mp.budgetDenials.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", toolName)))
}

// RecordRateLimitHit records a call refused by the rate limiter.
func (mp *MetricsProvider) RecordRateLimitHit(ctx context.Context, toolName string) {
	mp.rateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", toolName)))
}

// IncrementActiveRuns increments the active runs counter.
func (mp *MetricsProvider) IncrementActiveRuns(ctx context.Context) {
	mp.activeRuns.Add(ctx, 1)
}

// DecrementActiveRuns decrements the active runs counter.
func (mp *MetricsProvider) DecrementActiveRuns(ctx context.Context) {
	mp.activeRuns.Add(ctx, -1)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordToolCall(context.Context, string, bool, time.Duration) {}
func (NoopMetrics) RecordTransition(context.Context, string, string) {}
func (NoopMetrics) RecordSelfCorrection(context.Context, string) {}
func (NoopMetrics) RecordModelCall(context.Context, string, bool, time.Duration) {}
func (NoopMetrics) RecordRunDuration(context.Context, time.Duration, string, int) {}
func (NoopMetrics) RecordBudgetDenial(context.Context, string) {}
func (NoopMetrics) RecordRateLimitHit(context.Context, string) {}
func (NoopMetrics) IncrementActiveRuns(context.Context) {}
func (NoopMetrics) DecrementActiveRuns(context.Context) {}

var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = NoopMetrics{}
)
