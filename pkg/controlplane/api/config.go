package api

import (
	"os"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
)

// EnvAPISecret takes precedence over api.jwt.secret.
const EnvAPISecret = "DITTOSMB_API_JWT_SECRET"

// Defaults for APIConfig.
const (
	DefaultPort          = 8080
	DefaultReadTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultIdleTimeout   = 60 * time.Second
	DefaultTokenLifetime = 15 * time.Minute
)

// APIConfig configures the HTTP server for health probes, the session list,
// user management and /metrics. With a JWT secret the /api/v1 routes need a
// bearer token from /api/v1/auth/login.
type APIConfig struct {
	// Enabled defaults to true.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`
	// BindAddress is empty for all interfaces.
	BindAddress  string        `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address"`
	Port         int           `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	JWT          JWTConfig     `mapstructure:"jwt" yaml:"jwt"`
}

type JWTConfig struct {
	// Secret is the HMAC key. Empty leaves the API unauthenticated.
	Secret              string        `mapstructure:"secret" validate:"omitempty,min=32" yaml:"secret,omitempty"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" yaml:"access_token_duration"`
}

func (c *APIConfig) ApplyDefaults() {
	if c.Enabled == nil {
		on := true
		c.Enabled = &on
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	setDuration(&c.ReadTimeout, DefaultReadTimeout)
	setDuration(&c.WriteTimeout, DefaultWriteTimeout)
	setDuration(&c.IdleTimeout, DefaultIdleTimeout)
	setDuration(&c.JWT.AccessTokenDuration, DefaultTokenLifetime)
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

func (c *APIConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// GetJWTSecret resolves the signing secret, environment first.
func (c *APIConfig) GetJWTSecret() string {
	env := os.Getenv(EnvAPISecret)
	if env == "" {
		return c.JWT.Secret
	}
	if c.JWT.Secret != "" && c.JWT.Secret != env {
		logger.Warn("JWT secret from environment overrides the config file", "env_var", EnvAPISecret)
	}
	return env
}

func (c *APIConfig) HasJWTSecret() bool {
	return c.GetJWTSecret() != ""
}
