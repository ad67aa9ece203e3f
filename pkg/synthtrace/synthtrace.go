// Package synthtrace wraps OpenTelemetry tracing for the synthesis driver,
// grounded on the teacher's pkg/telemetry/tracer.go: same exporter switch
// (otlp/stdout/none), same ParentBased+TraceIDRatioBased sampler, same
// package-level RecordError/RecordSuccess/SetAttributes helpers, with span
// constructors and attribute keys renamed for synthesis runs, query
// installs, improvement jobs, and GC sweeps instead of infrastructure runs
// and resource operations.
package synthtrace

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config controls whether tracing is active and where spans are exported.
type Config struct {
	Enabled            bool
	Exporter           string // otlp, stdout, none
	Endpoint           string
	SamplingRate       float64
	MaxExportBatchSize int
	ExportTimeout      time.Duration
	Headers            map[string]string
	Insecure           bool
}

// DefaultConfig samples every trace to stdout, suitable for local runs.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		Exporter:           "stdout",
		SamplingRate:       1.0,
		MaxExportBatchSize: 512,
		ExportTimeout:      30 * time.Second,
		Insecure:           true,
	}
}

// Tracer wraps an OpenTelemetry tracer for one synthesis driver instance.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   Config
}

// New builds a Tracer. A disabled config returns a no-op provider whose
// spans are never exported.
func New(cfg Config, serviceName, serviceVersion, environment string) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{
			provider: sdktrace.NewTracerProvider(),
			tracer:   otel.Tracer(serviceName),
			config:   cfg,
		}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			attribute.String("environment", environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		exporter, err = newOTLPExporter(cfg)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "none":
		exporter = nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("build trace exporter: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(
			exporter,
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
		))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Tracer{provider: provider, tracer: provider.Tracer(serviceName), config: cfg}, nil
}

func newOTLPExporter(cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithBlock()))
	return otlptracegrpc.New(context.Background(), opts...)
}

// StartSpan starts a generically named span with the given attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRunSpan starts a span covering one full ConstructInitial-through-
// Assemble driver run.
func (t *Tracer) StartRunSpan(ctx context.Context, specName string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "synth.run",
		AttrSpecName.String(specName),
		attribute.String("span.kind", "run"),
	)
}

// StartInstallSpan starts a span for installing one query's representation.
func (t *Tracer) StartInstallSpan(ctx context.Context, query string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "synth.install",
		AttrQueryName.String(query),
		attribute.String("span.kind", "install"),
	)
}

// StartImproveSpan starts a span for one improvement job's lifetime.
func (t *Tracer) StartImproveSpan(ctx context.Context, query string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "synth.improve",
		AttrQueryName.String(query),
		attribute.String("span.kind", "improve"),
	)
}

// StartGCSpan starts a span for one reachability sweep.
func (t *Tracer) StartGCSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "synth.gc", attribute.String("span.kind", "gc"))
}

// StartHandleUpdateSpan starts a span for planning a handle-update for one
// operation.
func (t *Tracer) StartHandleUpdateSpan(ctx context.Context, op, handleType string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "synth.handle_update",
		AttrOperationName.String(op),
		AttrHandleType.String(handleType),
		attribute.String("span.kind", "handle_update"),
	)
}

// RecordError records an error on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks span as successfully completed.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SetAttributes sets attrs on span.
func SetAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// AddEvent records a named event on span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Shutdown flushes pending spans and releases exporter resources.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ForceFlush forces immediate export of all pending spans.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// SpanFromContext returns the current span carried by ctx.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// TraceID returns the trace ID of the span in ctx, or "" if none.
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// Attribute keys used across synth spans.
var (
	AttrSpecName      = attribute.Key("spec.name")
	AttrQueryName     = attribute.Key("query.name")
	AttrOperationName = attribute.Key("operation.name")
	AttrHandleType    = attribute.Key("handle.type")
	AttrErrorClass    = attribute.Key("error.class")
	AttrErrorCode     = attribute.Key("error.code")
)
