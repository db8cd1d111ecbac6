// Package telemetry wires OpenTelemetry tracing and metrics for the
// governance engine.
//
// Telemetry stays off unless GOV_OTEL_ENABLED=true; the off path installs
// no-op providers so instrumented call sites cost nothing.
//
// Environment:
//
//	GOV_OTEL_ENABLED=true                enable tracing and metrics
//	GOV_OTEL_STDOUT=true                 mirror both signals to stdout
//	OTEL_EXPORTER_OTLP_ENDPOINT          OTLP gRPC collector (host:port)
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT  metrics-only collector override
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationScope = "github.com/regsuite/governance"
	serviceNamespace     = "regsuite"

	stdoutMetricInterval = 15 * time.Second
	otlpMetricInterval   = 30 * time.Second
)

var (
	closersMu sync.Mutex
	closers   []func(context.Context) error
)

// Enabled reports whether telemetry is active (GOV_OTEL_ENABLED=true).
func Enabled() bool {
	return os.Getenv("GOV_OTEL_ENABLED") == "true"
}

// exportTargets is the exporter selection derived from the environment.
type exportTargets struct {
	stdout         bool
	traceEndpoint  string
	metricEndpoint string
}

// targetsFromEnv reads the exporter selection. The metrics endpoint falls
// back to the shared OTLP endpoint, and with no collector configured the
// stdout pair is forced on so enabling telemetry always produces output.
func targetsFromEnv() exportTargets {
	t := exportTargets{
		stdout:         os.Getenv("GOV_OTEL_STDOUT") == "true",
		traceEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		metricEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
	}
	if t.metricEndpoint == "" {
		t.metricEndpoint = t.traceEndpoint
	}
	if t.traceEndpoint == "" && !t.stdout {
		t.stdout = true
	}
	return t
}

// Init installs the global trace and meter providers. When telemetry is
// disabled both are no-ops and Init returns immediately.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
		semconv.ServiceNamespaceKey.String(serviceNamespace),
	))
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	targets := targetsFromEnv()
	if err := setupTracing(ctx, res, targets); err != nil {
		return err
	}
	return setupMetrics(ctx, res, targets)
}

func setupTracing(ctx context.Context, res *resource.Resource, targets exportTargets) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}
	if targets.stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("telemetry: stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	if targets.traceEndpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(targets.traceEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("telemetry: otlp trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	addCloser(tp.Shutdown)
	return nil
}

func setupMetrics(ctx context.Context, res *resource.Resource, targets exportTargets) error {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if targets.stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(stdoutMetricInterval)),
		))
	}
	if targets.metricEndpoint != "" {
		exp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(targets.metricEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(otlpMetricInterval)),
		))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	addCloser(mp.Shutdown)
	return nil
}

func addCloser(fn func(context.Context) error) {
	closersMu.Lock()
	closers = append(closers, fn)
	closersMu.Unlock()
}

// Tracer returns a tracer for the given instrumentation scope, defaulting
// to the module scope.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter for the given instrumentation scope, defaulting
// to the module scope.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops the providers installed by Init. Providers
// shut down in reverse install order.
func Shutdown(ctx context.Context) {
	closersMu.Lock()
	fns := closers
	closers = nil
	closersMu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		_ = fns[i](ctx)
	}
}
