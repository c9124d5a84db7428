package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/felixgeelhaar/omni/domain/config"
)

// Exporter names accepted in telemetry.exporter.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ExporterNone   = "none"
)

// ErrUnknownExporter indicates an unsupported trace exporter name.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Options configures Setup.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// TraceWriter receives stdout spans; nil means standard output.
	TraceWriter io.Writer
}

// Provider owns the tracer and meter providers of one process.
type Provider struct {
	tracer        trace.Tracer
	metrics       Metrics
	reader        *sdkmetric.ManualReader
	shutdownFuncs []func(context.Context) error
}

// Setup builds tracing and metrics from configuration and installs them
// as the global OpenTelemetry providers.
func Setup(ctx context.Context, cfg config.TelemetryConfig, opts Options) (*Provider, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "omni"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	)

	p := &Provider{
		tracer:  noop.NewTracerProvider().Tracer(opts.ServiceName),
		metrics: NoopMetrics{},
	}

	if cfg.Tracing {
		tp, err := newTracerProvider(ctx, cfg, res, opts.TraceWriter)
		if err != nil {
			return nil, err
		}
		if tp != nil {
			otel.SetTracerProvider(tp)
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))
			p.tracer = tp.Tracer(opts.ServiceName)
			p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
		}
	}

	if cfg.Metrics {
		p.reader = sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(p.reader),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		m, err := NewMetricsProvider(MetricsConfig{
			MeterName:     defaultMeterName,
			MeterVersion:  opts.ServiceVersion,
			MeterProvider: mp,
		})
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		p.metrics = m
		p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
	}

	return p, nil
}

func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, w io.Writer) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter

	switch cfg.Exporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
				otlptracegrpc.WithInsecure(),
			)
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		exporter = exp
	case ExporterStdout, "":
		stdoutOpts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if w != nil {
			stdoutOpts = append(stdoutOpts, stdouttrace.WithWriter(w))
		}
		exp, err := stdouttrace.New(stdoutOpts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporter = exp
	case ExporterNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate <= 0 || cfg.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	), nil
}

// NewNoopProvider returns a provider that records nothing.
func NewNoopProvider() *Provider {
	return &Provider{
		tracer:  noop.NewTracerProvider().Tracer("omni"),
		metrics: NoopMetrics{},
	}
}

// Tracer returns the tracer for tool spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Metrics returns the loop metrics recorder.
func (p *Provider) Metrics() Metrics {
	return p.metrics
}

// Collect reads the current metric values. It returns false when metrics
// are disabled.
func (p *Provider) Collect(ctx context.Context) (metricdata.ResourceMetrics, bool, error) {
	var rm metricdata.ResourceMetrics
	if p.reader == nil {
		return rm, false, nil
	}
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return rm, true, err
	}
	return rm, true, nil
}

// Shutdown flushes exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
