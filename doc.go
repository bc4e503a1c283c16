// Package otelware instruments inbound HTTP requests with OpenTelemetry
// spans and mirrors structured log events into exportable log records,
// shipping both to an OTLP collector such as Honeycomb.
//
// # Quick Start
//
//	provider, err := otelware.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Shutdown(context.Background())
//
//	slog.SetDefault(slog.New(provider.LogHandler(
//	    slog.NewTextHandler(os.Stderr, nil),
//	)))
//
//	r := chi.NewRouter()
//	r.Use(provider.Middleware())
//
// # Tracing HTTP Requests
//
// The middleware opens one server span per request and records the
// outcome once the handler has finished:
//
//   - method, matched route template, host, client address
//   - request headers (authorization and idtoken are always excluded)
//   - user agent, URL path and query
//   - response status code; 5xx marks the span failed
//   - X-Trace-ID response header for debugging
//
// Upstream trace context is extracted from the W3C traceparent header;
// use MiddlewareWithoutParent (or the WithoutParentExtraction option)
// to always start fresh root spans. WithResponsePropagation injects a
// traceparent header onto responses for chained correlation.
//
// # Log Records
//
// LogHandler returns a slog.Handler that exports every log event as an
// OpenTelemetry log record, independent of the trace export path. Each
// record carries the event's fields as typed attributes plus span.{i},
// span.{i}.location and span.{i}.name attributes describing every span
// that enclosed the event, outermost first.
//
// # Custom Spans
//
// Spans opened through the provider participate in the log bridge:
//
//	ctx, span := provider.Start(ctx, "process_order",
//	    otelware.String("order.id", orderID),
//	)
//	defer span.End()
//
// # Configuration
//
// Configuration comes from an explicit Config value; NewFromEnv reads
// the recognized environment variables:
//
//	OTEL_SERVICE_NAME            service name, defaults to the main module path
//	OTEL_EXPORTER_OTLP_ENDPOINT  defaults to https://api.eu1.honeycomb.io/
//	HONEYCOMB_API_KEY            export credential (required for OTLP)
//	OTEL_SAMPLE_RATIO            fraction of root traces sampled, default 1.0
//
// A missing credential aborts initialization. Exporter construction
// failures instead degrade to a disabled provider whose middleware
// passes requests through untouched; DisabledReason reports the cause.
//
// # Sampling
//
// Sampling is parent-aware: a sampled upstream decision is always
// followed, and the configured ratio only applies to root traces.
package otelware
