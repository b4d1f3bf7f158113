package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/casmirror/casmirror/internal/logger"
	"github.com/casmirror/casmirror/internal/telemetry"
	"github.com/casmirror/casmirror/pkg/config"
	"github.com/casmirror/casmirror/pkg/daemon"
	"github.com/casmirror/casmirror/pkg/metrics"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the synchronizer daemon",
	Long: `Start the casmirror daemon.

The daemon watches the configured source roots for filesystem changes,
registers files against the metadata store as they appear, runs the upload
worker that drains the queue into object storage, and schedules a daily full
scan that reconciles anything the watcher missed.

The process runs in the foreground until SIGINT or SIGTERM; use a process
supervisor (systemd, runit, a container runtime) for background operation.

Examples:
  # Start with default config location
  casmirror start

  # Start with custom config
  casmirror start --config /etc/casmirror/config.yaml

  # Start with environment variable overrides
  LOG_LEVEL=DEBUG casmirror start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "casmirror",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err.Error())
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "casmirror",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err.Error())
		}
	}()

	logger.Info("casmirror starting",
		"version", Version,
		"config", getConfigSource(GetConfigFile()),
		"log_level", cfg.Logging.Level)
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled",
			"endpoint", cfg.Telemetry.Endpoint,
			"sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("profiling enabled",
			"endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// Initialize the metrics server (if enabled)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		srv, err := metrics.NewServer(cfg.Metrics.Port)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("metrics server error", logger.KeyError, err.Error())
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", logger.KeyError, err.Error())
			}
		}()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	}

	roots := config.NormalizeSourcePaths(cfg.Sync.SourcePaths)

	sc, err := buildScanner(cfg, roots)
	if err != nil {
		return err
	}
	up, err := buildUploader(cfg, roots)
	if err != nil {
		return err
	}

	newDB := newGatewayFactory(cfg)
	d, err := daemon.New(daemon.Config{
		Roots:             roots,
		IgnorePatterns:    cfg.Sync.IgnorePatterns,
		Debounce:          cfg.Sync.Debounce(),
		FullScanHour:      cfg.Sync.FullScanHour,
		FullScanOnStartup: cfg.Sync.FullScanOnStartup,
		Timezone:          cfg.Sync.Timezone,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		MaxFileSize:       cfg.Sync.MaxScanSize.Int64(),
		NewDB:             func() daemon.DB { return newDB() },
		RunScan:           sc.Run,
		RunUploader:       up.Run,
		WatcherMetrics:    metrics.NewWatcherMetrics(),
	})
	if err != nil {
		return err
	}

	return d.Run(ctx)
}
