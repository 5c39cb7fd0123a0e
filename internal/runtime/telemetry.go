package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// telemetry owns the daemon's OTel providers. Spans go to an OTLP collector
// when one is configured and to stdout otherwise; the analysis counters are
// read through a Prometheus handler served on the daemon's own mux.
type telemetry struct {
	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
	handler http.Handler
}

func newTelemetry(cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	exporter, exporterName, err := newTraceExporter(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("build trace exporter: %w", err)
	}
	t := &telemetry{
		traces: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		),
	}
	otel.SetTracerProvider(t.traces)
	logger.Info("tracing initialized", slog.String("exporter", exporterName))

	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if promExporter, err := prometheus.New(); err != nil {
		logger.Warn("prometheus exporter unavailable, /metrics disabled", slog.String("error", err.Error()))
	} else {
		metricOpts = append(metricOpts, sdkmetric.WithReader(promExporter))
		t.handler = promhttp.Handler()
	}
	t.metrics = sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetMeterProvider(t.metrics)

	return t, nil
}

func newTraceExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, string, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		return exporter, "stdout", err
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	return exporter, "otlp:" + endpoint, err
}

// MetricsHandler returns the /metrics handler, nil when metrics are disabled.
func (t *telemetry) MetricsHandler() http.Handler {
	return t.handler
}

func (t *telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.metrics.Shutdown(ctx), t.traces.Shutdown(ctx))
}
