package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/controlplane"
	"github.com/marmos91/dittosmb/pkg/metrics"
	"github.com/marmos91/dittosmb/pkg/metrics/prometheus"
)

var startOpts struct {
	pidFile string
	noWatch bool
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dittosmb server",
	Long: `Run the server in the foreground until SIGINT or SIGTERM.

SMB2/3 clients are accepted on smb.port; the management API listens on
api.port unless disabled. Edits to the users section and logging.level of
the configuration file take effect without a restart.

Examples:
  dittosmb start
  dittosmb start --config /etc/dittosmb/config.yaml
  DITTOSMB_LOGGING_LEVEL=DEBUG DITTOSMB_SMB_PORT=1445 dittosmb start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startOpts.pidFile, "pid-file", "", "Write the process ID to this file while running")
	startCmd.Flags().BoolVar(&startOpts.noWatch, "no-watch", false, "Do not reload the configuration file when it changes")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObs, err := startObservability(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownObs()

	logger.Info("dittosmb starting",
		"version", Version,
		"config", configSource(cmdutil.Flags.ConfigFile),
		"log_level", cfg.Logging.Level,
		"log_format", cfg.Logging.Format)

	cp, err := controlplane.New(ctx, &controlplane.Options{
		Config:  cfg,
		Version: Version,
		Metrics: initMetrics(cfg),
	})
	if err != nil {
		return err
	}
	defer func() { _ = cp.Close() }()

	if !startOpts.noWatch {
		watchConfig(ctx, cp)
	}

	if p := startOpts.pidFile; p != "" {
		if err := os.WriteFile(p, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(p) }()
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	err = cp.Serve(ctx)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		logger.Error("Server stopped with error", logger.Err(err))
		return err
	case ctx.Err() != nil:
		logger.Info("Server stopped gracefully")
	default:
		logger.Info("Server stopped")
	}
	return nil
}

// startObservability brings up tracing and profiling. The returned function
// flushes and stops both.
func startObservability(ctx context.Context, cfg *config.Config) (func(), error) {
	tel := cfg.Telemetry
	stopTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        tel.Enabled,
		ServiceVersion: Version,
		Endpoint:       tel.Endpoint,
		Insecure:       tel.Insecure,
		SampleRate:     tel.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	stopProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        tel.Profiling.Enabled,
		ServiceVersion: Version,
		Endpoint:       tel.Profiling.Endpoint,
		ProfileTypes:   tel.Profiling.ProfileTypes,
	})
	if err != nil {
		_ = stopTracing(context.Background())
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	if telemetry.IsEnabled() {
		logger.Info("Tracing enabled", "endpoint", tel.Endpoint, "sample_rate", tel.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", tel.Profiling.Endpoint, "profile_types", tel.Profiling.ProfileTypes)
	}

	return func() {
		if err := stopProfiling(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
		// ctx is already cancelled here.
		if err := stopTracing(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}, nil
}

// initMetrics returns the SMB collectors, nil when metrics are off.
func initMetrics(cfg *config.Config) metrics.SMBMetrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	if !cfg.API.IsEnabled() {
		logger.Warn("Metrics enabled but the API server is disabled; /metrics will not be served")
	}
	metrics.InitRegistry()
	logger.Info("Metrics enabled", "path", "/metrics", "port", cfg.API.Port)
	return prometheus.NewSMBMetrics()
}

// watchConfig re-applies the configuration file on change. Nothing is
// watched when the server runs on built-in defaults.
func watchConfig(ctx context.Context, cp *controlplane.ControlPlane) {
	path := config.ResolvePath(cmdutil.Flags.ConfigFile)
	if _, err := os.Stat(path); err != nil {
		return
	}
	w, err := config.NewWatcher(path, func(c *config.Config) {
		if err := cp.ApplyConfig(ctx, c); err != nil {
			logger.Error("Failed to apply configuration change", logger.Err(err))
		}
	})
	if err != nil {
		logger.Warn("Configuration reload disabled", logger.Err(err))
		return
	}
	go w.Run(ctx)
	logger.Info("Watching configuration file", "path", path)
}

func configSource(flag string) string {
	switch {
	case flag != "":
		return flag
	case config.DefaultConfigExists():
		return config.GetDefaultConfigPath()
	default:
		return "defaults"
	}
}
