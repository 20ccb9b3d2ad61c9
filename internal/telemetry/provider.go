package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config selects where spans and metrics are exported.
type Config struct {
	// Enabled installs the exporting providers. When false Start does nothing.
	Enabled bool
	// Endpoint is the OTLP/HTTP collector as host:port. Empty falls back to
	// OTEL_EXPORTER_OTLP_ENDPOINT and then localhost:4318.
	Endpoint string
	// ServiceName and ServiceVersion label the exported resource.
	ServiceName    string
	ServiceVersion string
}

// ShutdownFunc flushes and stops the providers installed by Start.
type ShutdownFunc func(context.Context) error

// Start installs OTLP/HTTP tracer and meter providers as the globals and
// binds the instruments to them.
func Start(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "devteam"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}

	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
	traceOpts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	if cfg.Endpoint != "" {
		metricOpts = append(metricOpts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		traceOpts = append(traceOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}

	metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}
	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		_ = metricExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	if err := InitMeterProvider(mp); err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
