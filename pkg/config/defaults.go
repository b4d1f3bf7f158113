package config

import (
	"strings"
	"time"

	"github.com/casmirror/casmirror/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applySyncDefaults(&cfg.Sync)
	applyMetadataDefaults(&cfg.Metadata)
	applyStorageDefaults(&cfg.Storage)
	applyShutdownTimeoutDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// DefaultIgnorePatterns are the watcher glob filters applied when none are
// configured. Dot-prefixed path components are always ignored on top of
// these.
var DefaultIgnorePatterns = []string{
	"*.tmp",
	"*.partial",
	".DS_Store",
	"Thumbs.db",
	"@eaDir/*",
	"#recycle/*",
}

// applySyncDefaults sets sync behavior defaults.
func applySyncDefaults(cfg *SyncConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = 6
	}
	if len(cfg.IgnorePatterns) == 0 {
		cfg.IgnorePatterns = append([]string(nil), DefaultIgnorePatterns...)
	}
	if cfg.DebounceSeconds == 0 {
		cfg.DebounceSeconds = 3.0
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.MaxScanSize == 0 {
		cfg.MaxScanSize = bytesize.GiB
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 100 * bytesize.MiB
	}
	// FullScanHour zero value is a valid hour (midnight), so no default is
	// applied here; GetDefaultConfig seeds it with 2 for sample configs.
}

// applyMetadataDefaults sets metadata API defaults.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
}

// applyStorageDefaults sets object storage defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	// Custom endpoints are almost always MinIO or similar, which need
	// path-style addressing.
	if cfg.Endpoint != "" {
		cfg.UsePathStyle = true
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Sync: SyncConfig{
			SourcePaths:  []string{"/data"},
			FullScanHour: 2,
		},
		Metadata: MetadataConfig{
			URL:    "http://localhost:3000",
			APIKey: "change-me",
		},
		Storage: StorageConfig{
			Endpoint:  "http://localhost:9000",
			AccessKey: "change-me",
			SecretKey: "change-me",
			Bucket:    "files",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
