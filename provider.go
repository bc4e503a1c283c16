package otelware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this library on spans and log records.
const instrumentationName = "github.com/jimmitjoo/otelware"

// version is this library's release version.
const version = "0.1.0"

// Provider owns the span and log export pipelines, the propagator, and
// the span extension registry. It is safe for concurrent use; all
// fields are read-only after New returns.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
	tracer         trace.Tracer
	logger         otellog.Logger
	propagator     propagation.TextMapPropagator
	extensions     *extensionRegistry
	disabledReason error
	shutdownOnce   sync.Once
	shutdown       bool
	mu             sync.RWMutex
}

// New creates a Provider from the given configuration.
//
// Configuration errors (missing service name, missing API key, bad
// sample ratio) are returned as errors: tracing without a usable
// destination is a deployment mistake and should abort startup.
//
// Exporter construction errors (malformed endpoint, transport setup)
// degrade instead: New returns a disabled Provider whose middleware
// passes requests through untouched. DisabledReason reports why.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		config:     cfg,
		extensions: newExtensionRegistry(),
	}
	p.propagator = propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)

	if err := p.init(); err != nil {
		p.disabledReason = fmt.Errorf("otelware: tracing disabled: %w", err)
		p.tracerProvider = nil
		p.loggerProvider = nil
		p.tracer = nil
		p.logger = nil
		return p, nil
	}

	if cfg.RegisterGlobal {
		otel.SetTracerProvider(p.tracerProvider)
		otel.SetTextMapPropagator(p.propagator)
	}

	return p, nil
}

// init builds the export pipelines.
func (p *Provider) init() error {
	ctx := context.Background()

	res, err := p.createResource()
	if err != nil {
		return err
	}

	spanExporter, err := p.createSpanExporter(ctx)
	if err != nil {
		return err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(p.createSampler()),
	}
	if spanExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(spanExporter))
	}
	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	p.tracer = p.tracerProvider.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion(version),
	)

	logExporter, err := p.createLogExporter(ctx)
	if err != nil {
		return err
	}
	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	if logExporter != nil {
		logOpts = append(logOpts, sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)))
	}
	p.loggerProvider = sdklog.NewLoggerProvider(logOpts...)
	p.logger = p.loggerProvider.Logger(
		instrumentationName,
		otellog.WithInstrumentationVersion(version),
	)

	return nil
}

// exportHeaders merges the configured extra headers with the API
// credential header.
func (p *Provider) exportHeaders() map[string]string {
	headers := make(map[string]string, len(p.config.Headers)+1)
	for k, v := range p.config.Headers {
		headers[k] = v
	}
	if p.config.APIKey != "" {
		headers[honeycombTeamHeader] = p.config.APIKey
	}
	return headers
}

// createSpanExporter creates the configured span exporter, or nil for
// ExporterNone.
func (p *Provider) createSpanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch p.config.Exporter {
	case ExporterOTLPHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpointURL(p.config.Endpoint),
			otlptracehttp.WithHeaders(p.exportHeaders()),
		}
		if p.config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(p.config.Endpoint),
			otlptracegrpc.WithHeaders(p.exportHeaders()),
		}
		if p.config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		client := otlptracegrpc.NewClient(opts...)
		return otlptrace.New(ctx, client)
	case ExporterZipkin:
		return zipkin.New(p.config.Endpoint)
	case ExporterNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("otelware: unknown exporter: %s", p.config.Exporter)
	}
}

// createLogExporter creates the log record exporter. Log export rides
// the OTLP/HTTP transport; for the other exporter types log records
// are accepted and dropped.
func (p *Provider) createLogExporter(ctx context.Context) (sdklog.Exporter, error) {
	if p.config.Exporter != ExporterOTLPHTTP {
		return nil, nil
	}
	opts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(p.config.Endpoint),
		otlploghttp.WithHeaders(p.exportHeaders()),
	}
	if p.config.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	return otlploghttp.New(ctx, opts...)
}

// createResource describes this service on every exported span and
// log record.
func (p *Provider) createResource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(p.config.ServiceName),
	}

	if p.config.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(p.config.ServiceVersion))
	}

	if p.config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(p.config.Environment))
	}

	for k, v := range p.config.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...), nil
}

// createSampler builds the root sampler. Every strategy is wrapped in
// ParentBased, so a sampled upstream decision is always followed and
// the configured strategy only applies to root spans.
func (p *Provider) createSampler() sdktrace.Sampler {
	var root sdktrace.Sampler
	switch p.config.Sampler {
	case SamplerAlways:
		root = sdktrace.AlwaysSample()
	case SamplerNever:
		root = sdktrace.NeverSample()
	case SamplerRatio:
		root = sdktrace.TraceIDRatioBased(p.config.SampleRatio)
	default:
		root = sdktrace.TraceIDRatioBased(p.config.SampleRatio)
	}
	return sdktrace.ParentBased(root)
}

// Tracer returns the tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tracer
}

// TracerProvider returns the underlying tracer provider, or nil when
// tracing is disabled.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tracerProvider
}

// Propagator returns the text map propagator used for context
// extraction and injection.
func (p *Provider) Propagator() propagation.TextMapPropagator {
	return p.propagator
}

// Config returns the provider configuration.
func (p *Provider) Config() Config {
	return p.config
}

// IsEnabled reports whether the provider is actively instrumenting.
func (p *Provider) IsEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.shutdown && p.tracer != nil
}

// DisabledReason returns the exporter construction error that caused
// the provider to start disabled, or nil.
func (p *Provider) DisabledReason() error {
	return p.disabledReason
}

// Shutdown flushes pending spans and log records and stops the export
// pipelines. Call it on application exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()

		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if p.tracerProvider != nil {
			err = p.tracerProvider.Shutdown(shutdownCtx)
		}
		if p.loggerProvider != nil {
			if logErr := p.loggerProvider.Shutdown(shutdownCtx); err == nil {
				err = logErr
			}
		}
	})
	return err
}

// ForceFlush immediately exports all pending spans and log records.
func (p *Provider) ForceFlush(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.tracerProvider != nil {
		if err := p.tracerProvider.ForceFlush(ctx); err != nil {
			return err
		}
	}
	if p.loggerProvider != nil {
		return p.loggerProvider.ForceFlush(ctx)
	}
	return nil
}
