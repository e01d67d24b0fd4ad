package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	defs "mountkit/definitions"
	log "mountkit/logger"
)

// Setup installs an OTLP tracer provider when cfg names an endpoint. The
// returned function flushes and stops it within the export timeout. Without an
// endpoint spans go to the global no-op provider.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	tp, err := NewTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Debugf("tracing to %s as %s", cfg.Endpoint, cfg.ServiceName)
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, exportTimeout(cfg))
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// Start opens a span on the global provider.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(defs.ServiceName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
