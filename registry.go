package otelware

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// spanExtension is the pre-rendered snapshot of a span taken when the
// span is opened. It is immutable afterwards and is what log records
// nested inside the span reference, so a span's description in a log
// record always reflects the span as it was created.
type spanExtension struct {
	desc     string
	location string
}

// extensionRegistry maps span IDs to their extensions. Entries live
// exactly as long as their span: inserted when the span is opened,
// removed when it ends. Events firing after a span has closed find no
// entry and cannot attach to it.
type extensionRegistry struct {
	mu   sync.RWMutex
	byID map[trace.SpanID]spanExtension
}

func newExtensionRegistry() *extensionRegistry {
	return &extensionRegistry{byID: make(map[trace.SpanID]spanExtension)}
}

func (r *extensionRegistry) insert(id trace.SpanID, ext spanExtension) {
	r.mu.Lock()
	r.byID[id] = ext
	r.mu.Unlock()
}

func (r *extensionRegistry) lookup(id trace.SpanID) (spanExtension, bool) {
	r.mu.RLock()
	ext, ok := r.byID[id]
	r.mu.RUnlock()
	return ext, ok
}

func (r *extensionRegistry) remove(id trace.SpanID) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

func (r *extensionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// spanScope is one frame of the active span stack. Scopes form a
// parent-linked chain carried in the request context, so every
// goroutine resumption sees the exact nesting that was active when the
// context was captured.
type spanScope struct {
	parent *spanScope
	id     trace.SpanID
	name   string
}

type scopeContextKey struct{}

// pushScope records a newly opened span as the innermost frame of the
// active span stack.
func pushScope(ctx context.Context, id trace.SpanID, name string) context.Context {
	parent, _ := ctx.Value(scopeContextKey{}).(*spanScope)
	return context.WithValue(ctx, scopeContextKey{}, &spanScope{
		parent: parent,
		id:     id,
		name:   name,
	})
}

// scopeChain returns the active span stack ordered root to leaf.
// Index 0 is the outermost span.
func scopeChain(ctx context.Context) []*spanScope {
	leaf, _ := ctx.Value(scopeContextKey{}).(*spanScope)
	if leaf == nil {
		return nil
	}
	var chain []*spanScope
	for s := leaf; s != nil; s = s.parent {
		chain = append(chain, s)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// renderExtension builds the one-line textual description stored as a
// span's extension: name, owning module, source location, and every
// attribute rendered per type.
func renderExtension(name, module, location string, attrs []attribute.KeyValue) spanExtension {
	var b strings.Builder
	b.Grow(256)
	fmt.Fprintf(&b, "Name: '%s', { module: '%s', location: '%s'", name, module, location)
	for _, kv := range attrs {
		fmt.Fprintf(&b, ", %s: '%s'", string(kv.Key), renderAttrValue(kv.Value))
	}
	b.WriteString(" }")
	return spanExtension{desc: b.String(), location: location}
}

// renderAttrValue renders a single attribute value in its natural
// textual form: strings verbatim, booleans and numbers as printed by
// the runtime, everything else through a generic debug rendering.
func renderAttrValue(v attribute.Value) string {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.BOOL:
		return fmt.Sprintf("%v", v.AsBool())
	case attribute.INT64:
		return fmt.Sprintf("%v", v.AsInt64())
	case attribute.FLOAT64:
		return fmt.Sprintf("%v", v.AsFloat64())
	default:
		return fmt.Sprintf("%+v", v.AsInterface())
	}
}
