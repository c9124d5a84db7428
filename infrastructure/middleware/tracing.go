package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/tool"
)

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// TracerName is the name of the tracer to use.
	TracerName string
	// Tracer is a custom tracer. If nil, the global provider's tracer is used.
	Tracer trace.Tracer
	// RecordInput records tool arguments as a span attribute.
	RecordInput bool
	// MaxAttributeSize limits the size of recorded attributes.
	MaxAttributeSize int
	// SpanNamePrefix is prepended to span names.
	SpanNamePrefix string
}

// DefaultTracingConfig returns the default configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName:       "omni",
		RecordInput:      true,
		MaxAttributeSize: 1024,
		SpanNamePrefix:   "tool.",
	}
}

// Tracing returns middleware that creates an OpenTelemetry span per tool call.
// A failure result marks the span as an error without recording an exception.
func Tracing(cfg TracingConfig) middleware.Middleware {
	tracer := cfg.Tracer
	if tracer == nil {
		name := cfg.TracerName
		if name == "" {
			name = "omni"
		}
		tracer = otel.Tracer(name)
	}
	maxSize := cfg.MaxAttributeSize
	if maxSize <= 0 {
		maxSize = 1024
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, execCtx *middleware.ExecutionContext) (tool.Result, error) {
			t := execCtx.Tool
			ctx, span := tracer.Start(ctx, cfg.SpanNamePrefix+t.Name(), trace.WithSpanKind(trace.SpanKindInternal))
			defer span.End()

			annotations := t.Annotations()
			span.SetAttributes(
				attribute.String("omni.run_id", execCtx.RunID),
				attribute.Int("omni.iteration", execCtx.Iteration),
				attribute.String("omni.step_id", execCtx.StepID),
				attribute.String("tool.name", t.Name()),
				attribute.Bool("tool.read_only", annotations.ReadOnly),
				attribute.Bool("tool.destructive", annotations.Destructive),
				attribute.String("tool.risk_level", annotations.RiskLevel.String()),
			)
			if cfg.RecordInput && len(execCtx.Input) > 0 {
				span.SetAttributes(attribute.String("tool.input", truncate(string(execCtx.Input), maxSize)))
			}

			result, err := next(ctx, execCtx)

			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case result.IsFailure():
				span.SetAttributes(attribute.String("tool.error", truncate(result.ErrorText(), maxSize)))
				span.SetStatus(codes.Error, "tool failed")
			default:
				span.SetStatus(codes.Ok, "")
				span.SetAttributes(attribute.Int("tool.output_bytes", len(result.Output())))
			}

			return result, err
		}
	}
}
