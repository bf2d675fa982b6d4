// pkg/telemetry/telemetry.go

// Package telemetry wires a per-process OpenTelemetry tracer. Tracing is
// opt-in; without the marker file a noop provider is installed so Start is
// always safe to call.
package telemetry

import (
	"context"
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var tracer trace.Tracer

// Init configures OpenTelemetry; call early in main().
func Init(service string) error {
	if !enabled() {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		tracer = tp.Tracer(service)
		return nil
	}

	dir := filepath.Join(os.Getenv("HOME"), ".aegis", "telemetry")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return cerr.Wrap(err, "failed to create telemetry directory")
	}

	file, err := os.OpenFile(filepath.Join(dir, "telemetry.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return cerr.Wrap(err, "failed to open telemetry file")
	}

	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(file),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		file.Close()
		return cerr.Wrap(err, "failed to create file exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(
			sdkresource.NewWithAttributes(
				semconv.SchemaURL,
				attribute.String("service.name", service),
				attribute.String("host.name", hostname()),
			),
		),
	)

	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(service)
	return nil
}

// Start begins a span with optional attributes.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracer == nil {
		tp := noop.NewTracerProvider()
		tracer = tp.Tracer("aegis")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func enabled() bool {
	path := filepath.Join(os.Getenv("HOME"), ".aegis", "telemetry_on")
	_, err := os.Stat(path)
	return err == nil
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
