// Package telemetry installs the OpenTelemetry tracer provider and the propagator that carries
// trace context between HTTP requests, scrape runs, and outgoing notifications.
package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InitPropagation sets the global text map propagator to W3C trace context plus baggage.
func InitPropagation() propagation.TextMapPropagator {
	p := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	otel.SetTextMapPropagator(p)
	return p
}
