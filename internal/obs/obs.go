// Package obs wires up OpenTelemetry tracing for blocknoded: a bare
// SDK tracer provider with no exporter configured, the same
// minimalism the reference daemon wiring uses. Spans are still
// created and ended normally; they simply have nowhere to go until an
// exporter is added.
package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by this daemon in a future
// exporter's UI.
const TracerName = "blocknode"

// Setup installs a process-wide SDK tracer provider and returns a
// shutdown func the caller must invoke on exit.
func Setup() func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Tracer returns the package-level tracer every mesh/pipeline span is
// started from.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Meter returns the package-level meter block counters are registered
// against. No MeterProvider is installed, so instruments recorded
// through it are no-ops until an exporter is configured — same
// minimalism as Setup.
func Meter() metric.Meter {
	return otel.Meter(TracerName)
}
