package telemetry

// DefaultServiceName is reported when Config.ServiceName is empty.
const DefaultServiceName = "dittosmb"

// Config selects OTLP gRPC span export.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Endpoint is the collector as host:port.
	Endpoint string
	Insecure bool
	// SampleRate is clamped to [0, 1]; parent sampling decisions win.
	SampleRate float64
}

func (c Config) serviceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

func (c Config) sampleRatio() float64 {
	return min(max(c.SampleRate, 0), 1)
}
