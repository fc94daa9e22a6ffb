package obsv

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig controls span export for one Operation dispatch per spec.md
// §4.4/§4.11 "Trace() renders the current session's span tree". Only a
// stdout exporter is wired — no OTLP collector is part of this spec's
// boundary (see DESIGN.md "Dropped dependencies").
type TracerConfig struct {
	Enabled     bool
	ServiceName string
}

// InitTracer installs a global TracerProvider, or a no-op one when
// disabled, matching the teacher's InitGlobalTracer pattern.
func InitTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the named tracer, used to open one span per Operation
// dispatch (name, tags, duration, cache-hit, per SPEC_FULL.md).
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
