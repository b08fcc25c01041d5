// Package config loads, validates and watches the dittosmb configuration.
package config

import (
	"time"

	"github.com/marmos91/dittosmb/pkg/adapter/smb"
	"github.com/marmos91/dittosmb/pkg/controlplane/api"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

// Config is the whole server configuration. Values come from, highest
// precedence first, DITTOSMB_* environment variables, the YAML file and
// ApplyDefaults.
//
// Only Users and Logging.Level are re-applied while the server runs.
type Config struct {
	Logging         LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry       TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
	Database        store.Config    `mapstructure:"database" yaml:"database"`
	Metrics         MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	API             api.APIConfig   `mapstructure:"api" yaml:"api"`
	SMB             smb.Config      `mapstructure:"smb" yaml:"smb"`

	// Users are synchronised into the credential store at startup and on
	// every reload.
	Users []UserConfig `mapstructure:"users" validate:"dive" yaml:"users,omitempty"`
}

type LoggingConfig struct {
	// Level is upper-cased by ApplyDefaults.
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig selects OTLP span export for SMB commands, NTLM
// authentication and API requests.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Endpoint is the OTLP gRPC collector as host:port.
	Endpoint   string          `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig enables continuous profiling with Pyroscope.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,profile_type" yaml:"profile_types"`
}

// MetricsConfig turns on Prometheus collection, served by the API under
// /metrics. Disabled metrics are never recorded.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}
