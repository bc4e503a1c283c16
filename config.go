package otelware

import (
	"errors"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
)

// DefaultEndpoint is the collector endpoint used when none is configured.
const DefaultEndpoint = "https://api.eu1.honeycomb.io/"

// honeycombTeamHeader carries the API credential on export requests.
const honeycombTeamHeader = "x-honeycomb-team"

// ExporterType defines the telemetry exporter to use.
type ExporterType string

const (
	// ExporterOTLPHTTP exports via OTLP over HTTP (recommended, and what
	// Honeycomb expects).
	ExporterOTLPHTTP ExporterType = "otlp-http"
	// ExporterOTLPGRPC exports via OTLP over gRPC.
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	// ExporterZipkin exports directly to Zipkin.
	ExporterZipkin ExporterType = "zipkin"
	// ExporterNone disables exporting (useful for testing).
	ExporterNone ExporterType = "none"
)

// SamplerType defines the sampling strategy for root spans.
// All strategies are parent-aware: a sampled upstream context is
// always honored.
type SamplerType string

const (
	// SamplerAlways samples all root traces.
	SamplerAlways SamplerType = "always"
	// SamplerNever samples no root traces.
	SamplerNever SamplerType = "never"
	// SamplerRatio samples a fraction of root traces.
	SamplerRatio SamplerType = "ratio"
)

// Config holds the full instrumentation configuration. There is no
// ambient/global configuration; everything is threaded through the
// Provider built from this value.
type Config struct {
	// ServiceName identifies this service in traces and logs. Defaults
	// to the main module path, or "unknown" when build metadata is
	// unavailable.
	ServiceName string

	// ServiceVersion is the version of this service (optional).
	ServiceVersion string

	// Environment identifies the deployment environment (e.g., "production").
	Environment string

	// Endpoint is the collector endpoint URL. Defaults to DefaultEndpoint.
	Endpoint string

	// APIKey is the credential attached to every export request as the
	// x-honeycomb-team header. Required for the OTLP exporters.
	APIKey string

	// Exporter selects the telemetry exporter. Defaults to OTLP/HTTP.
	Exporter ExporterType

	// Insecure disables TLS for the OTLP/gRPC exporter connection.
	Insecure bool

	// Sampler selects the root sampling strategy. Defaults to SamplerRatio.
	Sampler SamplerType

	// SampleRatio is the fraction of root traces sampled when Sampler is
	// SamplerRatio. Value between 0.0 and 1.0. Defaults to 1.0.
	SampleRatio float64

	// WithoutParent makes Middleware ignore any upstream trace context
	// found in inbound request headers, so every request starts a fresh
	// root span. The default is to honor upstream context.
	WithoutParent bool

	// PropagateResponse injects a traceparent header onto outbound
	// responses so the caller can correlate with this service's span.
	PropagateResponse bool

	// RegisterGlobal additionally installs the provider's tracer provider
	// and propagator as the process-wide OpenTelemetry defaults. Off by
	// default; prefer passing the Provider explicitly.
	RegisterGlobal bool

	// Headers are additional headers to send with exports.
	Headers map[string]string

	// ResourceAttributes are additional attributes to add to all spans
	// and log records.
	ResourceAttributes map[string]string

	// sampleRatioSet distinguishes an explicit 0.0 ratio (sample no root
	// traces) from the zero value of an unset field.
	sampleRatioSet bool
}

// WithExplicitSampleRatio marks SampleRatio as deliberately set so that
// a 0.0 ratio survives validation instead of defaulting to 1.0.
func (c Config) WithExplicitSampleRatio(ratio float64) Config {
	c.Sampler = SamplerRatio
	c.SampleRatio = ratio
	c.sampleRatioSet = true
	return c
}

// Validate checks that the configuration is usable and fills defaults.
// A missing API key for an OTLP exporter is a hard error: there is no
// point tracing without a destination that will accept the data.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName()
	}

	if c.Exporter == "" {
		c.Exporter = ExporterOTLPHTTP
	}

	switch c.Exporter {
	case ExporterOTLPHTTP, ExporterOTLPGRPC, ExporterZipkin, ExporterNone:
	default:
		return errors.New("otelware: invalid Exporter type: " + string(c.Exporter))
	}

	if c.Endpoint == "" && c.Exporter != ExporterNone {
		c.Endpoint = DefaultEndpoint
	}

	if (c.Exporter == ExporterOTLPHTTP || c.Exporter == ExporterOTLPGRPC) && c.APIKey == "" {
		return errors.New("otelware: APIKey is required (set HONEYCOMB_API_KEY)")
	}

	if c.Sampler == "" {
		c.Sampler = SamplerRatio
	}

	switch c.Sampler {
	case SamplerAlways, SamplerNever, SamplerRatio:
	default:
		return errors.New("otelware: invalid Sampler type: " + string(c.Sampler))
	}

	if c.Sampler == SamplerRatio && c.SampleRatio == 0 && !c.sampleRatioSet {
		c.SampleRatio = 1.0
	}

	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return errors.New("otelware: SampleRatio must be between 0.0 and 1.0")
	}

	return nil
}

// String returns a human-readable representation of the config.
// The API key is never included.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("otelware.Config{")
	b.WriteString("ServiceName: " + c.ServiceName)
	if c.ServiceVersion != "" {
		b.WriteString(", Version: " + c.ServiceVersion)
	}
	if c.Environment != "" {
		b.WriteString(", Env: " + c.Environment)
	}
	b.WriteString(", Exporter: " + string(c.Exporter))
	if c.Endpoint != "" {
		b.WriteString(", Endpoint: " + c.Endpoint)
	}
	b.WriteString(", Sampler: " + string(c.Sampler))
	if c.Sampler == SamplerRatio {
		b.WriteString("(" + strconv.FormatFloat(c.SampleRatio, 'f', -1, 64) + ")")
	}
	b.WriteString("}")
	return b.String()
}

// defaultServiceName identifies the service from build metadata when
// no name was configured.
func defaultServiceName() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Path != "" {
		return info.Main.Path
	}
	return "unknown"
}

// FromEnv builds a Config from the recognized environment variables:
//
//	OTEL_SERVICE_NAME             service name, defaults to the main module path
//	OTEL_SERVICE_VERSION          service version
//	OTEL_ENVIRONMENT              deployment environment
//	OTEL_EXPORTER_OTLP_ENDPOINT   collector endpoint, defaults to DefaultEndpoint
//	HONEYCOMB_API_KEY             export credential (required for OTLP)
//	OTEL_EXPORTER                 otlp-http, otlp-grpc, zipkin or none
//	OTEL_INSECURE                 "true" disables TLS for gRPC export
//	OTEL_SAMPLE_RATIO             fraction of root traces sampled, default 1.0
//
// The result has not been validated; New does that.
func FromEnv() Config {
	cfg := Config{
		ServiceName:    os.Getenv("OTEL_SERVICE_NAME"),
		ServiceVersion: os.Getenv("OTEL_SERVICE_VERSION"),
		Environment:    os.Getenv("OTEL_ENVIRONMENT"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		APIKey:         os.Getenv("HONEYCOMB_API_KEY"),
		Exporter:       ExporterType(os.Getenv("OTEL_EXPORTER")),
		Insecure:       os.Getenv("OTEL_INSECURE") == "true",
		SampleRatio:    1.0,
	}

	if ratio := os.Getenv("OTEL_SAMPLE_RATIO"); ratio != "" {
		if parsed, err := strconv.ParseFloat(ratio, 64); err == nil {
			cfg.SampleRatio = parsed
			cfg.sampleRatioSet = true
		}
	}

	return cfg
}
