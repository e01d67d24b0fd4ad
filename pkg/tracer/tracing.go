// Package tracer wires OpenTelemetry tracing for mount provisioning.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultExportTimeout = 5 * time.Second

// Config selects the OTLP/gRPC collector spans are exported to.
type Config struct {
	// ServiceName becomes the service.name resource attribute.
	ServiceName string
	// Endpoint is the collector address (host:port). Empty disables export.
	Endpoint string
	// Insecure dials the collector without TLS.
	Insecure bool
	// SampleRatio is the fraction of root spans kept, in [0, 1].
	SampleRatio float64
	// ExportTimeout bounds every export. The connection itself is made lazily,
	// so an unreachable collector never blocks startup.
	ExportTimeout time.Duration
}

// NewConfig samples every span and exports with the default timeout.
func NewConfig(serviceName string) Config {
	return Config{
		ServiceName:   serviceName,
		SampleRatio:   1.0,
		ExportTimeout: defaultExportTimeout,
	}
}

// NewTracerProvider builds a provider exporting to cfg.Endpoint and installs
// it globally. The caller must Shutdown it before exiting.
func NewTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("tracer: service name is required")
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("tracer: sample ratio %v out of [0, 1]", cfg.SampleRatio)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		attribute.Int("process.pid", os.Getpid()),
	))
	if err != nil {
		return nil, fmt.Errorf("tracer: resource creation: %w", err)
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithExportTimeout(exportTimeout(cfg))),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func exportTimeout(cfg Config) time.Duration {
	if cfg.ExportTimeout <= 0 {
		return defaultExportTimeout
	}
	return cfg.ExportTimeout
}

// newExporter never dials: grpc connects on the first export.
func newExporter(ctx context.Context, cfg Config) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(exportTimeout(cfg)),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}

	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracer: OTLP exporter creation: %w", err)
	}
	return exp, nil
}
