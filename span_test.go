package otelware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestHTTPRoute(t *testing.T) {
	t.Run("no router", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/users/42", nil)
		if got := httpRoute(req); got != "" {
			t.Errorf("httpRoute() = %q, want empty string without a resolved route", got)
		}
	})

	t.Run("chi route template", func(t *testing.T) {
		var got string
		r := chi.NewRouter()
		r.Get("/users/{id}", func(w http.ResponseWriter, req *http.Request) {
			got = httpRoute(req)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/users/42", nil))

		if got != "/users/{id}" {
			t.Errorf("httpRoute() = %q, want the route template, not the concrete path", got)
		}
	})
}

func TestHTTPHost(t *testing.T) {
	t.Run("host header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "http://uri-host.test/x", nil)
		req.Host = "header-host.test"
		if got := httpHost(req); got != "header-host.test" {
			t.Errorf("httpHost() = %q, want the Host header", got)
		}
	})

	t.Run("falls back to URI host", func(t *testing.T) {
		req := httptest.NewRequest("GET", "http://uri-host.test/x", nil)
		req.Host = ""
		if got := httpHost(req); got != "uri-host.test" {
			t.Errorf("httpHost() = %q, want the URI host", got)
		}
	})

	t.Run("falls back to empty", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/x", nil)
		req.Host = ""
		req.URL.Host = ""
		if got := httpHost(req); got != "" {
			t.Errorf("httpHost() = %q, want empty string", got)
		}
	})
}

func TestFilteredHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Idtoken", "id-token")
	req.Header.Add("Accept-Encoding", "gzip")
	req.Header.Add("Accept-Encoding", "br")

	got := filteredHeaders(req)

	if strings.Contains(got, "Bearer token") || strings.Contains(got, "id-token") {
		t.Errorf("filteredHeaders() = %q includes secret headers", got)
	}
	for _, want := range []string{"Accept: application/json", "Accept-Encoding: gzip, br", "X-Request-ID: req-1"} {
		if !strings.Contains(got, want) {
			t.Errorf("filteredHeaders() = %q, want it to contain %q", got, want)
		}
	}
}

func TestClientAddress(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*http.Request)
		want  string
	}{
		{
			name: "x-forwarded-for single",
			setup: func(r *http.Request) {
				r.Header.Set("X-Forwarded-For", "203.0.113.7")
			},
			want: "203.0.113.7",
		},
		{
			name: "x-forwarded-for chain takes first",
			setup: func(r *http.Request) {
				r.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.2")
			},
			want: "203.0.113.7",
		},
		{
			name: "x-real-ip",
			setup: func(r *http.Request) {
				r.Header.Set("X-Real-IP", "198.51.100.9")
			},
			want: "198.51.100.9",
		},
		{
			name:  "remote addr strips port",
			setup: func(r *http.Request) { r.RemoteAddr = "192.0.2.1:51234" },
			want:  "192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			tt.setup(req)
			if got := clientAddress(req); got != tt.want {
				t.Errorf("clientAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServerAttributes(t *testing.T) {
	req := httptest.NewRequest("GET", "/orders?page=2", nil)
	req.Header.Set("User-Agent", "test-agent/1.0")
	req.Header.Set("X-Request-ID", "req-42")

	attrs := serverAttributes(req, "/orders")

	checks := map[string]string{
		"http.request.method": "GET",
		"http.route":          "/orders",
		"url.path":            "/orders",
		"url.query":           "page=2",
		"user_agent.original": "test-agent/1.0",
		"user.id":             "-",
		"request_id":          "req-42",
	}
	for key, want := range checks {
		v, ok := attrValue(attrs, key)
		if !ok {
			t.Errorf("attribute %q missing", key)
			continue
		}
		if v.AsString() != want {
			t.Errorf("attribute %q = %q, want %q", key, v.AsString(), want)
		}
	}
}

func TestStart_RegistersExtension(t *testing.T) {
	provider := newTestProvider(t, nil)

	ctx, span := provider.Start(context.Background(), "work", attribute.String("job", "sync"))

	sc := span.SpanContext()
	ext, ok := provider.extensions.lookup(sc.SpanID())
	if !ok {
		t.Fatal("extension should be registered while the span is open")
	}
	if !strings.Contains(ext.desc, "Name: 'work'") || !strings.Contains(ext.desc, "job: 'sync'") {
		t.Errorf("extension desc = %q, want name and fields rendered", ext.desc)
	}

	chain := scopeChain(ctx)
	if len(chain) != 1 || chain[0].name != "work" {
		t.Fatalf("scope chain = %+v, want the single open span", chain)
	}

	span.End()
	if _, ok := provider.extensions.lookup(sc.SpanID()); ok {
		t.Error("extension should be released when the span ends")
	}
}

func TestWithSpan_RecordsError(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	provider := newTestProvider(t, exp)

	cause := errors.New("disk full")
	err := provider.WithSpan(context.Background(), "flush", func(ctx context.Context) error {
		return cause
	})

	if !errors.Is(err, cause) {
		t.Error("WithSpan must return the handler error unchanged")
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
}

func TestTraceIDFromContext(t *testing.T) {
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Errorf("TraceIDFromContext() = %q, want empty without an active trace", got)
	}

	provider := newTestProvider(t, nil)
	ctx, span := provider.Start(context.Background(), "test")
	defer span.End()

	traceID := TraceIDFromContext(ctx)
	if len(traceID) != 32 {
		t.Errorf("TraceIDFromContext() = %q, want a 32-character hex trace ID", traceID)
	}
	if SpanIDFromContext(ctx) == "" {
		t.Error("SpanIDFromContext() should return the active span ID")
	}

	info := GetTraceInfo(ctx)
	if info.TraceID != traceID {
		t.Errorf("GetTraceInfo().TraceID = %q, want %q", info.TraceID, traceID)
	}
}

func TestPackageOf(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"github.com/acme/app/web.(*Server).List", "github.com/acme/app/web"},
		{"github.com/acme/app/web.handler", "github.com/acme/app/web"},
		{"main.main", "main"},
	}

	for _, tt := range tests {
		if got := packageOf(tt.symbol); got != tt.want {
			t.Errorf("packageOf(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}
