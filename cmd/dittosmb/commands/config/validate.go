package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file",
	Long: `Load the configuration file exactly as 'dittosmb start' would, report
the first error, and otherwise print a summary and warnings about settings
that are legal but risky.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configFile())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\nValidation: OK\n\n", config.ResolvePath(configFile()))

	api := "disabled"
	if cfg.API.IsEnabled() {
		api = fmt.Sprintf("port %d", cfg.API.Port)
	}
	if err := output.KeyValue(out, [][2]string{
		{"Database", string(cfg.Database.Type)},
		{"SMB port", fmt.Sprint(cfg.SMB.Port)},
		{"Dialects", cfg.SMB.MinDialect + " - " + cfg.SMB.MaxDialect},
		{"Max message size", cfg.SMB.MaxMessageSize.String()},
		{"API", api},
		{"Configured users", fmt.Sprint(len(cfg.Users))},
		{"Log level", cfg.Logging.Level},
	}); err != nil {
		return err
	}

	if warnings := configWarnings(cfg); len(warnings) > 0 {
		_, _ = fmt.Fprintf(out, "\nWarnings:\n  - %s\n", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// configWarnings flags settings that load but are probably unintended.
func configWarnings(cfg *config.Config) []string {
	var w []string
	warn := func(format string, args ...any) { w = append(w, fmt.Sprintf(format, args...)) }

	if cfg.API.IsEnabled() && !cfg.API.HasJWTSecret() {
		warn("api.jwt.secret not set: the management API is unauthenticated")
	}
	if cfg.Metrics.Enabled && !cfg.API.IsEnabled() {
		warn("metrics enabled but the API server is disabled: /metrics will not be served")
	}
	if cfg.SMB.AllowGuest {
		warn("smb.allow_guest is set: unknown users get guest sessions")
	}
	if s := cfg.SMB.Signing.Enabled; s != nil && !*s {
		warn("smb.signing.enabled is false: clients cannot sign")
	}
	for _, u := range cfg.Users {
		if u.Password != "" {
			warn("user %q has a clear-text password in the file, prefer nt_hash", u.Username)
		}
	}
	return w
}
