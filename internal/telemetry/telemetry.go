// Package telemetry sets up OpenTelemetry tracing for the program crawler.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Config controls tracing. With no endpoint, spans are recorded but not
// exported, which still propagates trace context into published messages.
type Config struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTracerProvider installs the global tracer provider and propagator.
// Disabled configs leave the global no-op provider in place.
func InitTracerProvider(ctx context.Context, cfg Config, logger *zap.Logger) (Shutdown, error) {
	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return noopShutdown, nil
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}
	if cfg.OTLPEndpoint != "" {
		exportCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		exporter, err := otlptracehttp.New(exportCtx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("trace exporter initialized", zap.String("endpoint", cfg.OTLPEndpoint))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)
	return tp.Shutdown, nil
}
