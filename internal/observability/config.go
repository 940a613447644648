package observability

// Config captures the opt-in tracing settings.
type Config struct {
	// Endpoint is the OTLP/HTTP collector URL. Tracing stays off while it is
	// empty.
	Endpoint    string  `toml:"endpoint" env:"CCW_OTEL_ENDPOINT"`
	Enabled     bool    `toml:"enabled" env:"CCW_OTEL_ENABLED"`
	ServiceName string  `toml:"service_name" env:"CCW_OTEL_SERVICE_NAME"`
	SampleRatio float64 `toml:"sample_ratio" env:"CCW_OTEL_SAMPLE_RATIO"`
}

// Active reports whether Setup will install an exporter.
func (c Config) Active() bool {
	return c.Enabled && c.Endpoint != ""
}
