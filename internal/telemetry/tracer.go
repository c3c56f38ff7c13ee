// Package telemetry owns the tracer names of the recorder core and the
// global provider setup used by its binaries.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Version identifies the recorder core in emitted spans.
const Version = "0.1.0"

// Tracer names. Spans around replay runs and lineage builds are created
// against these so consumers can tell the two apart in exported traces.
const (
	TracerReplay = "flight-recorder/replay"
	TracerAudit  = "flight-recorder/audit"
)

// Replay returns the tracer for replay runs.
func Replay() trace.Tracer { return otel.Tracer(TracerReplay) }

// Audit returns the tracer for audit trail operations.
func Audit() trace.Tracer { return otel.Tracer(TracerAudit) }

// InitTracer installs a global tracer provider with a stdout exporter and
// returns the function that flushes and shuts it down.
func InitTracer(serviceName string, logger *slog.Logger) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing initialized",
		slog.String("service", serviceName),
		slog.String("version", Version),
	)

	return tp.Shutdown, nil
}
