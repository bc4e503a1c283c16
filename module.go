package otelware

// Option configures the provider built by NewFromEnv.
type Option func(*Config)

// NewFromEnv builds a Provider from the recognized environment
// variables, with options applied on top. See FromEnv for the variable
// list. A missing credential is a fatal configuration error.
//
//	provider, err := otelware.NewFromEnv(
//	    otelware.WithResponsePropagation(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Shutdown(context.Background())
func NewFromEnv(opts ...Option) (*Provider, error) {
	cfg := FromEnv()
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

// WithServiceName sets the service name reported on spans and logs.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.ServiceVersion = version
	}
}

// WithEnvironment sets the deployment environment.
func WithEnvironment(env string) Option {
	return func(c *Config) {
		c.Environment = env
	}
}

// WithEndpoint sets the collector endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithAPIKey sets the export credential.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithExporter selects the telemetry exporter.
func WithExporter(exporter ExporterType) Option {
	return func(c *Config) {
		c.Exporter = exporter
	}
}

// WithRatioSample samples the given fraction of root traces.
func WithRatioSample(ratio float64) Option {
	return func(c *Config) {
		*c = c.WithExplicitSampleRatio(ratio)
	}
}

// WithAlwaysSample samples every root trace.
func WithAlwaysSample() Option {
	return func(c *Config) {
		c.Sampler = SamplerAlways
	}
}

// WithoutParentExtraction makes the middleware ignore upstream trace
// headers so every request starts a fresh root span.
func WithoutParentExtraction() Option {
	return func(c *Config) {
		c.WithoutParent = true
	}
}

// WithResponsePropagation injects a traceparent header onto outbound
// responses for chained propagation.
func WithResponsePropagation() Option {
	return func(c *Config) {
		c.PropagateResponse = true
	}
}

// WithGlobalRegistration installs the provider's tracer provider and
// propagator as the process-wide OpenTelemetry defaults.
func WithGlobalRegistration() Option {
	return func(c *Config) {
		c.RegisterGlobal = true
	}
}
