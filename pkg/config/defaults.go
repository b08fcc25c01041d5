package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittosmb/pkg/adapter/smb"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

// DefaultShutdownTimeout bounds a graceful stop of the whole server.
const DefaultShutdownTimeout = 30 * time.Second

// defaultProfileTypes are the Pyroscope profiles collected when none are
// configured.
var defaultProfileTypes = []string{
	"cpu",
	"alloc_objects",
	"alloc_space",
	"inuse_objects",
	"inuse_space",
	"goroutines",
}

// ApplyDefaults fills every zero-valued field with its default. Values set
// in the file or environment are kept; the log level is upper-cased.
func ApplyDefaults(cfg *Config) {
	lg := &cfg.Logging
	lg.Level = strings.ToUpper(orDefault(lg.Level, "INFO"))
	lg.Format = orDefault(lg.Format, "text")
	lg.Output = orDefault(lg.Output, "stdout")

	tel := &cfg.Telemetry
	tel.Endpoint = orDefault(tel.Endpoint, "localhost:4317")
	if tel.SampleRate == 0 {
		tel.SampleRate = 1.0
	}
	tel.Profiling.Endpoint = orDefault(tel.Profiling.Endpoint, "http://localhost:4040")
	if len(tel.Profiling.ProfileTypes) == 0 {
		tel.Profiling.ProfileTypes = append([]string(nil), defaultProfileTypes...)
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	cfg.Database.ApplyDefaults()
	cfg.API.ApplyDefaults()

	// The adapter treats port 0 as "any free port", which only tests want.
	if cfg.SMB.Port == 0 {
		cfg.SMB.Port = smb.DefaultPort
	}
	cfg.SMB.ApplyDefaults()

	for i := range cfg.Users {
		if cfg.Users[i].Enabled == nil {
			enabled := true
			cfg.Users[i].Enabled = &enabled
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// GetDefaultConfig returns the configuration used when no file exists.
func GetDefaultConfig() *Config {
	cfg := &Config{Database: store.Config{Type: store.DatabaseTypeSQLite}}
	ApplyDefaults(cfg)
	return cfg
}
