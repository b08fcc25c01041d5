package smb

import (
	"fmt"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/auth/ntlm"
	"github.com/marmos91/dittosmb/internal/bytesize"
)

// DefaultMaxMessageSize is the default maximum allowed size for a single SMB2
// message. Authentication traffic is a few kilobytes; anything larger than
// the SMB2 large MTU is refused.
const DefaultMaxMessageSize = 8 * bytesize.MiB

// DefaultPort is the standard direct-hosted SMB port.
const DefaultPort = 445

// TimeoutsConfig groups all timeout-related configuration.
type TimeoutsConfig struct {
	// Read is the maximum duration for reading a complete SMB2 request.
	// 0 means no timeout.
	Read time.Duration `mapstructure:"read" yaml:"read" validate:"min=0"`

	// Write is the maximum duration for writing an SMB2 response.
	// 0 means no timeout.
	Write time.Duration `mapstructure:"write" yaml:"write" validate:"min=0"`

	// Idle closes connections that send nothing for this long.
	// 0 keeps connections open indefinitely.
	Idle time.Duration `mapstructure:"idle" yaml:"idle" validate:"min=0"`

	// Shutdown is how long graceful shutdown waits for active connections
	// before force-closing them.
	Shutdown time.Duration `mapstructure:"shutdown" yaml:"shutdown" validate:"min=0"`
}

// SigningConfig selects the signing bits advertised in NEGOTIATE and
// SESSION_SETUP. The server itself never signs messages.
type SigningConfig struct {
	// Enabled advertises SMB2_NEGOTIATE_SIGNING_ENABLED. Default: true.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Required advertises SMB2_NEGOTIATE_SIGNING_REQUIRED and implies Enabled.
	Required bool `mapstructure:"required" yaml:"required"`
}

// NTLMConfig holds the server names announced in NTLM CHALLENGE messages.
// Unset names default to "localhost".
type NTLMConfig struct {
	TargetName          string `mapstructure:"target_name" yaml:"target_name"`
	NetBIOSComputerName string `mapstructure:"netbios_computer_name" yaml:"netbios_computer_name"`
	NetBIOSDomainName   string `mapstructure:"netbios_domain_name" yaml:"netbios_domain_name"`
	DNSComputerName     string `mapstructure:"dns_computer_name" yaml:"dns_computer_name"`
	DNSDomainName       string `mapstructure:"dns_domain_name" yaml:"dns_domain_name"`
}

// ServerConfig converts to the NTLM server configuration.
func (c NTLMConfig) ServerConfig() ntlm.ServerConfig {
	return ntlm.ServerConfig{
		TargetName:          c.TargetName,
		NetBIOSComputerName: c.NetBIOSComputerName,
		NetBIOSDomainName:   c.NetBIOSDomainName,
		DNSComputerName:     c.DNSComputerName,
		DNSDomainName:       c.DNSDomainName,
	}
}

// Config holds configuration parameters for the SMB server.
//
// Default values (applied by New if zero):
//   - Port: 445
//   - MaxRequestsPerConnection: 16
//   - Timeouts.Read: 5m, Timeouts.Write: 30s, Timeouts.Idle: 5m
//   - Timeouts.Shutdown: 30s
//   - MaxMessageSize: 8MiB
//   - Signing.Enabled: true
//   - Dialects: 2.0.2 through 3.1.1
type Config struct {
	// BindAddress is the IP address to bind to. Empty binds to all interfaces.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" validate:"omitempty,ip"`

	// Port is the TCP port to listen on. 0 picks a free port, which only
	// makes sense in tests; the configuration layer requires a real port.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent client connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// MaxRequestsPerConnection limits requests processed in parallel on one
	// connection.
	MaxRequestsPerConnection int `mapstructure:"max_requests_per_connection" yaml:"max_requests_per_connection" validate:"min=0"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// MaxMessageSize bounds a single NetBIOS frame. Accepts sizes such as
	// "64Ki" or "8Mi".
	MaxMessageSize bytesize.ByteSize `mapstructure:"max_message_size" yaml:"max_message_size"`

	// SessionIdleTimeout expires sessions without traffic for this long.
	// 0 disables the sweep.
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" yaml:"session_idle_timeout" validate:"min=0"`

	// MetricsLogInterval periodically logs the connection count. 0 disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`

	Signing SigningConfig `mapstructure:"signing" yaml:"signing"`

	// AllowGuest maps logons of unknown users to guest sessions.
	AllowGuest bool `mapstructure:"allow_guest" yaml:"allow_guest"`

	NTLM NTLMConfig `mapstructure:"ntlm" yaml:"ntlm"`

	// MinDialect and MaxDialect bound dialect selection ("2.0.2" ... "3.1.1").
	MinDialect string `mapstructure:"min_dialect" yaml:"min_dialect" validate:"omitempty,smb_dialect"`
	MaxDialect string `mapstructure:"max_dialect" yaml:"max_dialect" validate:"omitempty,smb_dialect"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxRequestsPerConnection == 0 {
		c.MaxRequestsPerConnection = 16
	}
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 5 * time.Minute
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 30 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 5 * time.Minute
	}
	if c.Timeouts.Shutdown == 0 {
		c.Timeouts.Shutdown = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.MinDialect == "" {
		c.MinDialect = types.Dialect0202.String()
	}
	if c.MaxDialect == "" {
		c.MaxDialect = types.Dialect0311.String()
	}
	c.Signing.applyDefaults()
}

// applyDefaults enables signing unless it was explicitly disabled. Required
// signing forces Enabled.
func (c *SigningConfig) applyDefaults() {
	if c.Enabled == nil || c.Required {
		enabled := true
		c.Enabled = &enabled
	}
}

// dialects returns the parsed dialect bounds.
func (c *Config) dialects() (minD, maxD types.Dialect, err error) {
	minD, ok := types.ParseDialect(c.MinDialect)
	if !ok {
		return 0, 0, fmt.Errorf("invalid min_dialect %q", c.MinDialect)
	}
	maxD, ok = types.ParseDialect(c.MaxDialect)
	if !ok {
		return 0, 0, fmt.Errorf("invalid max_dialect %q", c.MaxDialect)
	}
	if minD > maxD {
		return 0, 0, fmt.Errorf("min_dialect %s is above max_dialect %s", c.MinDialect, c.MaxDialect)
	}
	return minD, maxD, nil
}

// Validate checks a configuration after defaults have been applied.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max_connections %d: must be >= 0", c.MaxConnections)
	}
	if c.MaxRequestsPerConnection < 0 {
		return fmt.Errorf("invalid max_requests_per_connection %d: must be >= 0", c.MaxRequestsPerConnection)
	}
	if c.Timeouts.Read < 0 || c.Timeouts.Write < 0 || c.Timeouts.Idle < 0 {
		return fmt.Errorf("invalid timeouts: must be >= 0")
	}
	if c.Timeouts.Shutdown <= 0 {
		return fmt.Errorf("invalid timeouts.shutdown %v: must be > 0", c.Timeouts.Shutdown)
	}
	if c.MaxMessageSize < 128 || c.MaxMessageSize > 16*bytesize.MiB {
		return fmt.Errorf("invalid max_message_size %s: must be between 128 and 16Mi", c.MaxMessageSize)
	}
	if _, _, err := c.dialects(); err != nil {
		return err
	}
	return nil
}
