package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/config"
)

// scopeName identifies the instrumentation scope on every span, metric and
// log record this tool emits.
const scopeName = "github.com/wiggitywhitney/commit-story-sub001"

// Telemetry bundles the three signal providers. Export failures never stop
// the journaling pipeline: callers fall back to Noop() when Init errors.
type Telemetry struct {
	tracer    trace.Tracer
	meter     metric.Meter
	logHandle slog.Handler

	shutdowns []func(context.Context) error
}

// Noop returns a Telemetry whose providers discard everything. Used when
// dev mode is off or when exporter setup fails.
func Noop() *Telemetry {
	return &Telemetry{
		tracer: tracenoop.NewTracerProvider().Tracer(scopeName),
		meter:  metricnoop.NewMeterProvider().Meter(scopeName),
	}
}

// Init builds tracer, meter and logger providers exporting over OTLP to the
// configured collector, and installs them as the process globals.
func Init(ctx context.Context, cfg config.TelemetryConfig, version string) (*Telemetry, error) {
	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
	)

	endpoint, insecure := parseEndpoint(cfg.Endpoint)
	tel := &Telemetry{}

	traceExp, err := newTraceExporter(ctx, cfg.Protocol, endpoint, insecure)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create trace exporter", goerr.V("endpoint", cfg.Endpoint))
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	tel.shutdowns = append(tel.shutdowns, tracerProvider.Shutdown)

	metricExp, err := newMetricExporter(ctx, cfg.Protocol, endpoint, insecure)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create metric exporter", goerr.V("endpoint", cfg.Endpoint))
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	tel.shutdowns = append(tel.shutdowns, meterProvider.Shutdown)

	logExp, err := newLogExporter(ctx, cfg.Protocol, endpoint, insecure)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create log exporter", goerr.V("endpoint", cfg.Endpoint))
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	tel.shutdowns = append(tel.shutdowns, loggerProvider.Shutdown)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	global.SetLoggerProvider(loggerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tel.tracer = tracerProvider.Tracer(scopeName)
	tel.meter = meterProvider.Meter(scopeName)
	tel.logHandle = otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(loggerProvider))

	return tel, nil
}

func (x *Telemetry) Tracer() trace.Tracer { return x.tracer }
func (x *Telemetry) Meter() metric.Meter  { return x.meter }

// LogHandler returns a slog.Handler bridging records to the OTLP log
// exporter, or nil for a noop Telemetry.
func (x *Telemetry) LogHandler() slog.Handler { return x.logHandle }

// Shutdown flushes all pending spans, metrics and log records.
func (x *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range x.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return goerr.Wrap(errors.Join(errs...), "failed to shutdown telemetry")
	}
	return nil
}

func newTraceExporter(ctx context.Context, protocol config.Protocol, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	if protocol == config.ProtocolGRPC {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func newMetricExporter(ctx context.Context, protocol config.Protocol, endpoint string, insecure bool) (sdkmetric.Exporter, error) {
	if protocol == config.ProtocolGRPC {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return otlpmetrichttp.New(ctx, opts...)
}

func newLogExporter(ctx context.Context, protocol config.Protocol, endpoint string, insecure bool) (sdklog.Exporter, error) {
	if protocol == config.ProtocolGRPC {
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		return otlploggrpc.New(ctx, opts...)
	}
	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	return otlploghttp.New(ctx, opts...)
}

// parseEndpoint strips an optional scheme from the configured endpoint.
// Plain host:port and http:// endpoints are treated as insecure, which
// matches a local collector on 4318/4317.
func parseEndpoint(endpoint string) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), false
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), true
	default:
		return endpoint, true
	}
}

// Test helpers - exported versions of private functions for testing
// These should only be used in tests

// ParseEndpointForTest is a test helper that exposes parseEndpoint
func ParseEndpointForTest(endpoint string) (string, bool) {
	return parseEndpoint(endpoint)
}
