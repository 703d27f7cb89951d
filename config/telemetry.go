package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const tracerShutdownTimeout = 5 * time.Second

// InitTracer exports payment and FX spans to Jaeger. Disabled telemetry leaves the global
// no-op provider in place. The returned func flushes pending spans.
func InitTracer(cfg *TelemetryConfig, logger *slog.Logger) (func(), error) {
	if !cfg.Enabled {
		logger.Debug("tracing disabled")
		return func() {}, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("creating jaeger exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceNamespace("fxpay"),
	))
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	provider := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(cfg.SampleRatio))),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	logger.Info("tracing enabled", "service", cfg.ServiceName, "collector", cfg.JaegerURL, "sampleRatio", cfg.SampleRatio)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}, nil
}
