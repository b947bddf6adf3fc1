// Package observability wires OpenTelemetry tracing and metrics for the
// chat service. Metrics are exported in Prometheus format.
package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Service identifies the process in exported telemetry
type Service struct {
	Name        string
	Version     string
	Environment string
}

func (s Service) resource() *resource.Resource {
	kv := []resource.Option{resource.WithAttributes(semconv.ServiceName(s.Name))}
	if s.Version != "" {
		kv = append(kv, resource.WithAttributes(semconv.ServiceVersion(s.Version)))
	}
	if s.Environment != "" {
		kv = append(kv, resource.WithAttributes(semconv.DeploymentEnvironment(s.Environment)))
	}
	res, err := resource.New(context.Background(), append(kv, resource.WithSchemaURL(semconv.SchemaURL))...)
	if err != nil {
		return resource.Default()
	}
	merged, err := resource.Merge(resource.Default(), res)
	if err != nil {
		return res
	}
	return merged
}

// TracingOptions configures SetupTracing
type TracingOptions struct {
	// SampleRatio of root spans to keep; children follow their parent
	SampleRatio float64
	// Output defaults to stdout
	Output io.Writer
}

// SetupTracing installs a global tracer provider exporting spans as JSON and
// W3C trace-context propagation. The returned func flushes and stops it.
func SetupTracing(svc Service, opts TracingOptions) (func(context.Context) error, error) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("stdout trace exporter: %w", err)
	}

	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(svc.resource()),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return provider.Shutdown, nil
}

// SetupPrometheusMetrics builds a meter provider on a private registry that
// also carries Go runtime and process collectors, and returns its handler.
func SetupPrometheusMetrics(svc Service) (*metric.MeterProvider, http.Handler, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exp, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(exp),
		metric.WithResource(svc.resource()),
	)
	return mp, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}), nil
}
