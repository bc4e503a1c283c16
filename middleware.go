package otelware

import (
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// responseWriter observes the status code the handler writes, so the
// outcome can be recorded on the span afterwards. A handler that never
// calls WriteHeader counts as 200.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int64
	headerWritten bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.headerWritten {
		return
	}
	rw.statusCode = code
	rw.headerWritten = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.headerWritten {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns an HTTP middleware that opens a server span for
// every request, records the outcome once the handler has finished,
// and only then closes the span. Unless the configuration says
// otherwise, an upstream trace context found in the inbound headers
// becomes the span's parent.
func (p *Provider) Middleware() func(http.Handler) http.Handler {
	return p.middleware(!p.config.WithoutParent)
}

// MiddlewareWithoutParent is Middleware without upstream context
// extraction: every request starts a fresh root span regardless of the
// trace headers it carries.
func (p *Provider) MiddlewareWithoutParent() func(http.Handler) http.Handler {
	return p.middleware(false)
}

func (p *Provider) middleware(extractParent bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !p.IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := p.startRequestSpan(r, extractParent)
			defer p.endRequestSpan(span)

			rw := newResponseWriter(w)

			sc := span.SpanContext()
			if sc.HasTraceID() {
				rw.Header().Set("X-Trace-ID", sc.TraceID().String())
			}
			if p.config.PropagateResponse {
				// Response headers must be written before the body, so
				// the traceparent goes on up front.
				InjectTraceParent(sc, rw.Header())
			}

			defer func() {
				if rec := recover(); rec != nil {
					recordSpanError(span, fmt.Errorf("panic: %v", rec))
					panic(rec)
				}
			}()

			next.ServeHTTP(rw, r.WithContext(ctx))

			// The router resolves the route template during routing,
			// after this middleware has already opened the span, so the
			// name and route attribute are completed once the handler
			// returns.
			if route := httpRoute(r); route != "" {
				span.SetName(fmt.Sprintf("%s %s", r.Method, route))
				span.SetAttributes(semconv.HTTPRoute(route))
			}
			recordResponse(span, rw.statusCode)
		})
	}
}

// recordResponse records the final HTTP status on the span. Server
// errors mark the span failed; for every other class the span status
// stays Unset, per the HTTP semantic conventions.
func recordResponse(span trace.Span, statusCode int) {
	span.SetAttributes(semconv.HTTPResponseStatusCode(statusCode))

	if statusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(statusCode))
	}
}

// ErrorHandler is a request handler that reports failure by returning
// an error instead of writing an error response itself.
type ErrorHandler func(http.ResponseWriter, *http.Request) error

// WrapError adapts an error-returning handler so that a returned error
// is recorded on the active span: status Error plus the error text as
// the exception.message attribute, with a wrapped cause's message
// taking precedence. The error is returned unchanged, never swallowed.
func WrapError(h ErrorHandler) ErrorHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		err := h(w, r)
		if err != nil {
			recordSpanError(trace.SpanFromContext(r.Context()), err)
		}
		return err
	}
}

// unwrapCause returns the error's underlying cause, or nil.
func unwrapCause(err error) error {
	return errors.Unwrap(err)
}
