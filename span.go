package otelware

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys without a semconv helper.
const (
	attrHTTPHeaders = "http.headers"
	attrRequestID   = "request_id"
	attrUserID      = "user.id"
)

// secretHeaders are never included in the serialized headers attribute,
// regardless of casing. Not configurable.
var secretHeaders = []string{"authorization", "idtoken"}

// startRequestSpan creates the server span for an inbound request.
// When extractParent is true the upstream trace context found in the
// request headers becomes the span's parent; an invalid or absent
// context yields a fresh unsampled root, never an error.
func (p *Provider) startRequestSpan(r *http.Request, extractParent bool) (context.Context, trace.Span) {
	ctx := r.Context()
	if extractParent {
		ctx = p.propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
	}

	route := httpRoute(r)
	name := fmt.Sprintf("%s %s", r.Method, route)
	attrs := serverAttributes(r, route)

	ctx, span := p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)

	sc := span.SpanContext()
	if sc.HasSpanID() {
		p.extensions.insert(sc.SpanID(), renderExtension(name, instrumentationName, callerLocation(2), attrs))
		ctx = pushScope(ctx, sc.SpanID(), name)
	}

	return ctx, span
}

// endRequestSpan releases the span and its extension together.
func (p *Provider) endRequestSpan(span trace.Span) {
	if sc := span.SpanContext(); sc.HasSpanID() {
		p.extensions.remove(sc.SpanID())
	}
	span.End()
}

// serverAttributes derives the span attribute set from the request.
func serverAttributes(r *http.Request, route string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.ServerAddress(httpHost(r)),
		semconv.ClientAddress(clientAddress(r)),
		attribute.String(attrHTTPHeaders, filteredHeaders(r)),
		semconv.UserAgentOriginal(userAgent(r)),
		semconv.URLPath(r.URL.Path),
		semconv.URLQuery(r.URL.RawQuery),
		attribute.String(attrUserID, "-"), // populated once a user is resolved
	}

	// Most routers have not matched yet when the span opens; the
	// middleware fills the route in after the handler runs, so an empty
	// template is omitted here rather than recorded as "".
	if route != "" {
		attrs = append(attrs, semconv.HTTPRoute(route))
	}

	if id := r.Header.Get("X-Request-ID"); id != "" {
		attrs = append(attrs, attribute.String(attrRequestID, id))
	}

	return attrs
}

// httpRoute returns the route template the router matched, or an empty
// string when the router has not resolved one. Never the concrete path
// with parameter values substituted.
func httpRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// httpHost returns the Host header when present, the request URI's
// host component otherwise, or an empty string.
func httpHost(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}
	return r.URL.Host
}

// userAgent returns the User-Agent header, or an empty string.
func userAgent(r *http.Request) string {
	return r.UserAgent()
}

// filteredHeaders renders all request headers except the secret ones,
// one "Name: value" line per header, sorted by name.
func filteredHeaders(r *http.Request) string {
	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		if isSecretHeader(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(strings.Join(r.Header[name], ", "))
	}
	return b.String()
}

func isSecretHeader(name string) bool {
	for _, secret := range secretHeaders {
		if strings.EqualFold(name, secret) {
			return true
		}
	}
	return false
}

// clientAddress extracts the client address, preferring proxy headers
// over the socket peer.
func clientAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple addresses, take the first
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// Start creates a child span with the given attributes, registering it
// with the log bridge so that log events fired inside it carry its
// description. Remember to call span.End() when the operation is done.
//
// Usage:
//
//	ctx, span := provider.Start(ctx, "process_order",
//	    otelware.String("order.id", orderID),
//	)
//	defer span.End()
func (p *Provider) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !p.IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	sc := span.SpanContext()
	if !sc.HasSpanID() {
		return ctx, span
	}
	p.extensions.insert(sc.SpanID(), renderExtension(name, callerModule(2), callerLocation(2), attrs))
	ctx = pushScope(ctx, sc.SpanID(), name)

	return ctx, &registeredSpan{Span: span, registry: p.extensions}
}

// WithSpan executes fn within a new span. The span is ended, and its
// extension released, when fn returns. An error from fn is recorded on
// the span and returned unchanged.
func (p *Provider) WithSpan(ctx context.Context, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := p.Start(ctx, name, attrs...)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

// registeredSpan couples a span's lifetime to its extension registry
// entry: End removes the entry before closing the span.
type registeredSpan struct {
	trace.Span
	registry *extensionRegistry
	ended    bool
}

func (s *registeredSpan) End(opts ...trace.SpanEndOption) {
	if !s.ended {
		s.ended = true
		s.registry.remove(s.SpanContext().SpanID())
	}
	s.Span.End(opts...)
}

// SpanFromContext returns the current span from the context. Returns a
// no-op span if none is present.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// TraceIDFromContext extracts the trace ID from the context. Returns
// an empty string if no trace is active.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanIDFromContext extracts the span ID from the context. Returns an
// empty string if no span is active.
func SpanIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}

// TraceInfo bundles the identifiers of the active trace.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// GetTraceInfo extracts trace information from context.
func GetTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Sampled: sc.IsSampled(),
	}
}

// recordSpanError marks the span failed and records the error message
// as the exception.message attribute. When the error wraps a cause,
// the cause's message takes precedence.
func recordSpanError(span trace.Span, err error) {
	span.SetStatus(codes.Error, err.Error())
	msg := err.Error()
	if cause := unwrapCause(err); cause != nil {
		msg = cause.Error()
	}
	span.SetAttributes(semconv.ExceptionMessage(msg))
}

// callerLocation returns "file:line" for the caller skip frames up.
func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "UNKNOWN:0"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// callerModule returns the package path of the caller skip frames up.
func callerModule(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	return packageOf(fn.Name())
}

// packageOf strips the function name from a runtime function symbol,
// e.g. "github.com/acme/app/web.(*Server).List" -> "github.com/acme/app/web".
func packageOf(symbol string) string {
	slash := strings.LastIndexByte(symbol, '/')
	dot := strings.IndexByte(symbol[slash+1:], '.')
	if dot < 0 {
		return symbol
	}
	return symbol[:slash+1+dot]
}

// Convenience re-exports for building attributes.
var (
	String  = attribute.String
	Int     = attribute.Int
	Int64   = attribute.Int64
	Float64 = attribute.Float64
	Bool    = attribute.Bool
)
