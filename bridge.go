package otelware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	otellog "go.opentelemetry.io/otel/log"
)

// LevelTrace is the slog level mapped to trace severity. slog has no
// built-in trace level; anything below Debug maps to it.
const LevelTrace = slog.Level(-8)

// BridgeHandler is a slog.Handler that mirrors every log record into
// an exportable OpenTelemetry log record. Each record carries the
// event's fields as typed attributes plus a serialized snapshot of
// every span enclosing the event, ordered root to leaf:
//
//	span.0          description of the outermost span
//	span.0.location its source location
//	span.0.name     its name
//	span.1          ...
//
// Emission is fire-and-forget: export failures are owned by the
// batching exporter and never surface to the caller. When a next
// handler is supplied the record is also forwarded to it, so the
// bridge composes with an existing logging setup.
type BridgeHandler struct {
	logger otellog.Logger
	reg    *extensionRegistry
	next   slog.Handler
	attrs  []otellog.KeyValue
	bodies []bodyOverride
	group  string
}

// bodyOverride remembers a message/body field captured by WithAttrs.
type bodyOverride struct {
	value    string
	explicit bool // true for a field literally named "body"
}

// LogHandler returns a slog.Handler that exports structured log events
// through this provider's log pipeline. Pass the handler the rest of
// your logging setup should use as next, or nil to only export.
//
//	slog.SetDefault(slog.New(provider.LogHandler(
//	    slog.NewJSONHandler(os.Stdout, nil),
//	)))
func (p *Provider) LogHandler(next slog.Handler) slog.Handler {
	return &BridgeHandler{
		logger: p.logger,
		reg:    p.extensions,
		next:   next,
	}
}

// Enabled defers to the next handler when one is present; otherwise
// every level is bridged and severity filtering is left to the
// collector.
func (h *BridgeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next != nil {
		return h.next.Enabled(ctx, level)
	}
	return true
}

func (h *BridgeHandler) Handle(ctx context.Context, rec slog.Record) error {
	if h.logger != nil {
		h.emit(ctx, rec)
	}
	if h.next != nil {
		return h.next.Handle(ctx, rec)
	}
	return nil
}

func (h *BridgeHandler) emit(ctx context.Context, rec slog.Record) {
	var lr otellog.Record
	lr.SetTimestamp(rec.Time)
	lr.SetSeverity(severityOfLevel(rec.Level))
	lr.SetSeverityText(rec.Level.String())

	target, location := recordSource(rec)
	lr.AddAttributes(
		otellog.String("target", target),
		otellog.String("location", location),
	)

	// The record body is, in order of precedence: a field literally
	// named "body", a field named "message", the slog message.
	body := bodyOverride{}
	for _, b := range h.bodies {
		body = pick(body, b)
	}
	lr.AddAttributes(h.attrs...)
	rec.Attrs(func(a slog.Attr) bool {
		body = pick(body, h.addAttr(&lr, h.group, a))
		return true
	})
	if body.value == "" && !body.explicit {
		body.value = rec.Message
	}
	lr.SetBody(otellog.StringValue(body.value))

	// Snapshot the active span stack, outermost first. A frame whose
	// extension is gone belongs to a span that already closed; the
	// event cannot attach to it anymore.
	i := 0
	for _, scope := range scopeChain(ctx) {
		ext, ok := h.reg.lookup(scope.id)
		if !ok {
			continue
		}
		lr.AddAttributes(
			otellog.String(fmt.Sprintf("span.%d", i), ext.desc),
			otellog.String(fmt.Sprintf("span.%d.location", i), ext.location),
			otellog.String(fmt.Sprintf("span.%d.name", i), scope.name),
		)
		i++
	}

	h.logger.Emit(ctx, lr)
}

// addAttr converts one slog attribute into a log record attribute,
// flattening groups with dotted prefixes. Fields named message or body
// are returned as body candidates instead of being added.
func (h *BridgeHandler) addAttr(lr *otellog.Record, prefix string, a slog.Attr) bodyOverride {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		body := bodyOverride{}
		for _, ga := range v.Group() {
			body = pick(body, h.addAttr(lr, joinKey(prefix, a.Key), ga))
		}
		return body
	}

	key := joinKey(prefix, a.Key)
	switch key {
	case "body":
		return bodyOverride{value: renderDebug(v), explicit: true}
	case "message":
		return bodyOverride{value: renderDebug(v)}
	}

	lr.AddAttributes(otellog.KeyValue{Key: key, Value: convertValue(v)})
	return bodyOverride{}
}

// pick keeps the strongest body candidate seen so far.
func pick(current, candidate bodyOverride) bodyOverride {
	if candidate.value == "" && !candidate.explicit {
		return current
	}
	if current.explicit && !candidate.explicit {
		return current
	}
	return candidate
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// convertValue maps a slog value onto the log attribute type system,
// keeping the native type where one exists and falling back to a
// generic debug rendering otherwise.
func convertValue(v slog.Value) otellog.Value {
	switch v.Kind() {
	case slog.KindString:
		return otellog.StringValue(v.String())
	case slog.KindBool:
		return otellog.BoolValue(v.Bool())
	case slog.KindInt64:
		return otellog.Int64Value(v.Int64())
	case slog.KindFloat64:
		return otellog.Float64Value(v.Float64())
	default:
		return otellog.StringValue(renderDebug(v))
	}
}

// renderDebug is the fallback rendering for field values without a
// native attribute type.
func renderDebug(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	default:
		return fmt.Sprintf("%+v", v.Any())
	}
}

// WithAttrs captures the attributes now and replays them onto every
// bridged record, matching slog handler semantics.
func (h *BridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = clone.attrs[:len(clone.attrs):len(clone.attrs)]
	clone.bodies = clone.bodies[:len(clone.bodies):len(clone.bodies)]
	rec := attrRecorder{attrs: clone.attrs}
	for _, a := range attrs {
		body := clone.captureAttr(&rec, clone.group, a)
		if body.value != "" || body.explicit {
			clone.bodies = append(clone.bodies, body)
		}
	}
	clone.attrs = rec.attrs
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

// WithGroup prefixes the keys of subsequent attributes.
func (h *BridgeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}

// attrRecorder accumulates preformatted attributes for WithAttrs.
type attrRecorder struct {
	attrs []otellog.KeyValue
}

// captureAttr is addAttr for WithAttrs-time attributes.
func (h *BridgeHandler) captureAttr(rec *attrRecorder, prefix string, a slog.Attr) bodyOverride {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		body := bodyOverride{}
		for _, ga := range v.Group() {
			body = pick(body, h.captureAttr(rec, joinKey(prefix, a.Key), ga))
		}
		return body
	}

	key := joinKey(prefix, a.Key)
	switch key {
	case "body":
		return bodyOverride{value: renderDebug(v), explicit: true}
	case "message":
		return bodyOverride{value: renderDebug(v)}
	}

	rec.attrs = append(rec.attrs, otellog.KeyValue{Key: key, Value: convertValue(v)})
	return bodyOverride{}
}

// recordSource resolves the logging call site into a target (package
// path) and a file:line location.
func recordSource(rec slog.Record) (target, location string) {
	if rec.PC == 0 {
		return "UNKNOWN", "UNKNOWN:0"
	}
	frame, _ := runtime.CallersFrames([]uintptr{rec.PC}).Next()
	if frame.Function != "" {
		target = packageOf(frame.Function)
	} else {
		target = "UNKNOWN"
	}
	if frame.File != "" {
		location = fmt.Sprintf("%s:%d", frame.File, frame.Line)
	} else {
		location = "UNKNOWN:0"
	}
	return target, location
}

// severityOfLevel maps slog levels onto log severities. The mapping is
// monotonic: a higher slog level never yields a lower severity.
func severityOfLevel(level slog.Level) otellog.Severity {
	switch {
	case level < slog.LevelDebug:
		return otellog.SeverityTrace
	case level < slog.LevelInfo:
		return otellog.SeverityDebug
	case level < slog.LevelWarn:
		return otellog.SeverityInfo
	case level < slog.LevelError:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityError
	}
}
