package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

const configTemplate = `# dittosmb Configuration File
#
# Every key can be overridden from the environment with the DITTOSMB_ prefix,
# e.g. DITTOSMB_LOGGING_LEVEL=DEBUG or DITTOSMB_SMB_PORT=1445.
# The users section and logging.level are re-applied when this file changes.

logging:
  level: INFO          # DEBUG, INFO, WARN, ERROR
  format: text         # text or json
  output: stdout       # stdout, stderr or a file path

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: http://localhost:4040

metrics:
  enabled: false       # served on the API port under /metrics

shutdown_timeout: 30s

database:
  type: sqlite
  sqlite:
    path: %q

api:
  enabled: true
  port: 8080
  jwt:
    secret: %q
    access_token_duration: 15m

smb:
  port: 445
  max_connections: 0
  max_requests_per_connection: 16
  max_message_size: 8Mi
  session_idle_timeout: 0s
  timeouts:
    read: 5m
    write: 30s
    idle: 5m
    shutdown: 30s
  signing:
    enabled: true
    required: false
  allow_guest: false
  min_dialect: "2.0.2"
  max_dialect: "3.1.1"
  ntlm:
    target_name: WORKGROUP
    netbios_computer_name: DITTOSMB
    netbios_domain_name: WORKGROUP
    dns_computer_name: localhost
    dns_domain_name: localhost

# Accounts declared here are kept in sync with the credential store.
# Give either a password or an NT hash (32 hex digits), not both.
users: []
#  - username: alice
#    password: change-me-please
#  - username: svc-backup
#    nt_hash: 8846f7eaee8fb117ad06bdd830b7586c
`

// InitConfig writes a commented starter configuration to the default
// location and returns its path. An existing file is only replaced when
// force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a commented starter configuration to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(configTemplate, filepath.ToSlash(store.DefaultSQLitePath()), secret)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateSecret returns 32 random bytes hex encoded, suitable as a JWT
// signing secret.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
