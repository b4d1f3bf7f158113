package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/casmirror/casmirror/internal/bytesize"
)

// Config represents the casmirror configuration.
//
// This structure captures every static aspect of the synchronizer:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Metrics server settings
//   - Sync behavior (source roots, workers, debounce, scan schedule)
//   - Metadata API connection (PostgREST gateway)
//   - Object storage connection (S3-compatible)
//
// Configuration sources (in order of precedence):
//  1. Environment variables (flat names, see bindEnv)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Sync controls what gets synchronized and when
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Metadata configures the PostgREST metadata API connection
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Storage configures the S3-compatible object store
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// SyncConfig controls what the synchronizer watches and how it scans.
type SyncConfig struct {
	// SourcePaths is the list of absolute directory roots to synchronize.
	// Roots that do not exist at startup are warned about and skipped;
	// startup fails only if none remain.
	// Env: SYNC_SOURCE_PATHS (comma-separated)
	SourcePaths []string `mapstructure:"source_paths" validate:"required,min=1" yaml:"source_paths"`

	// Workers is the parallelism of the full-scan worker pool.
	// Default: 6
	// Env: SYNC_WORKERS
	Workers int `mapstructure:"workers" validate:"omitempty,min=1" yaml:"workers"`

	// DebounceSeconds is the event coalescing window for the watcher.
	// Default: 3.0
	// Env: DEBOUNCE_SECONDS
	DebounceSeconds float64 `mapstructure:"debounce_seconds" validate:"omitempty,gt=0" yaml:"debounce_seconds"`

	// IgnorePatterns is a list of glob patterns matched against both the
	// basename and the full path of every event and scanned file.
	// Env: IGNORE_PATTERNS (comma-separated)
	IgnorePatterns []string `mapstructure:"ignore_patterns" yaml:"ignore_patterns,omitempty"`

	// FullScanHour is the local hour (0-23) at which the daily full scan runs.
	// Default: 2
	// Env: FULL_SCAN_HOUR
	FullScanHour int `mapstructure:"full_scan_hour" validate:"min=0,max=23" yaml:"full_scan_hour"`

	// FullScanOnStartup controls whether a full scan runs immediately at startup.
	// Default: false
	// Env: FULL_SCAN_ON_STARTUP
	FullScanOnStartup bool `mapstructure:"full_scan_on_startup" yaml:"full_scan_on_startup"`

	// Timezone is the IANA timezone used for the full-scan hour comparison.
	// Default: "Local"
	// Env: TIMEZONE
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	// MaxScanSize is the size gate applied during registration. Files larger
	// than this are skipped before hashing.
	// Supports human-readable formats: "1Gi", "500Mi", "100MB"
	// Default: 1Gi
	MaxScanSize bytesize.ByteSize `mapstructure:"max_scan_size" yaml:"max_scan_size,omitempty"`

	// MaxUploadSize is the size gate applied by the upload worker. Queued
	// contents larger than this are marked skipped instead of uploaded.
	// Default: 100Mi
	MaxUploadSize bytesize.ByteSize `mapstructure:"max_upload_size" yaml:"max_upload_size,omitempty"`
}

// Debounce returns the event coalescing window as a duration.
func (c *SyncConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds * float64(time.Second))
}

// MetadataConfig configures the PostgREST metadata API connection.
type MetadataConfig struct {
	// URL is the base URL of the PostgREST endpoint
	// Env: METADATA_API_URL
	URL string `mapstructure:"url" validate:"required,url" yaml:"url"`

	// APIKey is sent as the X-API-Key header on every request
	// Env: METADATA_API_KEY
	APIKey string `mapstructure:"api_key" validate:"required" yaml:"api_key"`

	// Timeout is the per-request HTTP timeout
	// Default: 120s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// StorageConfig configures the S3-compatible object store.
type StorageConfig struct {
	// Endpoint is the S3 endpoint URL (empty for AWS)
	// Env: S3_ENDPOINT
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Region is the S3 region
	// Default: "us-east-1"
	// Env: S3_REGION
	Region string `mapstructure:"region" yaml:"region"`

	// AccessKey is the S3 access key ID
	// Env: S3_ACCESS_KEY
	AccessKey string `mapstructure:"access_key" validate:"required" yaml:"access_key"`

	// SecretKey is the S3 secret access key
	// Env: S3_SECRET_KEY
	SecretKey string `mapstructure:"secret_key" validate:"required" yaml:"secret_key"`

	// Bucket is the bucket that receives content-addressed objects
	// Env: S3_BUCKET
	Bucket string `mapstructure:"bucket" validate:"required" yaml:"bucket"`

	// UsePathStyle forces path-style addressing (required for MinIO and
	// most self-hosted S3 implementations)
	// Default: true when Endpoint is set
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (flat names like SYNC_SOURCE_PATHS)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location; a missing file is not an
// error, environment variables and defaults alone can form a valid config.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config files carry API keys and S3 credentials, so restrict to owner.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnv binds the flat environment variable names to their config keys.
// These names are fixed (they predate the config file format) so viper's
// prefix-based AutomaticEnv cannot derive them.
func bindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"sync.source_paths":         "SYNC_SOURCE_PATHS",
		"sync.workers":              "SYNC_WORKERS",
		"sync.debounce_seconds":     "DEBOUNCE_SECONDS",
		"sync.ignore_patterns":      "IGNORE_PATTERNS",
		"sync.full_scan_hour":       "FULL_SCAN_HOUR",
		"sync.full_scan_on_startup": "FULL_SCAN_ON_STARTUP",
		"sync.timezone":             "TIMEZONE",
		"metadata.url":              "METADATA_API_URL",
		"metadata.api_key":          "METADATA_API_KEY",
		"storage.endpoint":          "S3_ENDPOINT",
		"storage.region":            "S3_REGION",
		"storage.access_key":        "S3_ACCESS_KEY",
		"storage.secret_key":        "S3_SECRET_KEY",
		"storage.bucket":            "S3_BUCKET",
		"logging.level":             "LOG_LEVEL",
		"logging.format":            "LOG_FORMAT",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// readConfigFile reads the configuration file if it exists.
// A missing config file is not an error.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize,
// so config files can use human-readable sizes like "1Gi" or "100MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, so config files can
// use human-readable durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "casmirror")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "casmirror")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the configuration directory path (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}

// NormalizeSourcePaths cleans each configured root and drops trailing slashes.
// Roots are compared as prefixes during soft-delete sweeps, so a trailing
// slash would silently change which rows a sweep touches.
func NormalizeSourcePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}
