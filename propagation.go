package otelware

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// traceparentVersion is the supported W3C Trace Context version.
const traceparentVersion = 0

// Extract derives the upstream trace context carried in the given
// headers. When no valid context is present the returned context holds
// an unsampled default rather than an error.
func (p *Provider) Extract(ctx context.Context, h http.Header) context.Context {
	return p.propagator.Extract(ctx, propagation.HeaderCarrier(h))
}

// Inject writes the active trace context from ctx into the headers of
// an outbound request, using the configured propagation format.
func (p *Provider) Inject(ctx context.Context, h http.Header) {
	p.propagator.Inject(ctx, propagation.HeaderCarrier(h))
}

// InjectTraceParent writes a traceparent header of the form
// {version:02x}-{trace_id}-{span_id}-{flags:02x} for the given span
// context. Invalid contexts are not injected.
func InjectTraceParent(sc trace.SpanContext, h http.Header) {
	if !sc.IsValid() {
		return
	}
	h.Set("traceparent", fmt.Sprintf("%02x-%s-%s-%02x",
		traceparentVersion,
		sc.TraceID(),
		sc.SpanID(),
		sc.TraceFlags()&trace.FlagsSampled,
	))
}
