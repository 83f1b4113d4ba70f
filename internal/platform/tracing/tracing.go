// Package tracing exposes the tracer used for pipeline and collector spans.
// No provider is installed here; the global otel provider (no-op by default)
// decides where spans go.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "blaze"

// Tracer returns the shared tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
