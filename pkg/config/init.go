package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the commented template written by `casmirror init`.
// It must stay loadable by Load and parse into a valid Config.
const sampleConfig = `# casmirror Configuration File
#
# Every value below can also be set through environment variables, which take
# precedence over this file:
#   SYNC_SOURCE_PATHS, SYNC_WORKERS, DEBOUNCE_SECONDS, IGNORE_PATTERNS,
#   FULL_SCAN_HOUR, FULL_SCAN_ON_STARTUP, TIMEZONE,
#   METADATA_API_URL, METADATA_API_KEY,
#   S3_ENDPOINT, S3_REGION, S3_ACCESS_KEY, S3_SECRET_KEY, S3_BUCKET,
#   LOG_LEVEL, LOG_FORMAT

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: "INFO"
  # Output format: text (colorized for terminals) or json
  format: "text"
  # Destination: stdout, stderr, or a file path
  output: "stdout"

sync:
  # Absolute directory roots to synchronize
  source_paths:
    - "/data"
  # Parallelism of the full-scan worker pool
  workers: 6
  # Watcher event coalescing window in seconds
  debounce_seconds: 3.0
  # Glob patterns matched against basenames and full paths
  ignore_patterns:
    - "*.tmp"
    - "*.partial"
    - "~$*"
  # Local hour (0-23) for the daily full scan
  full_scan_hour: 2
  # Run a full scan immediately at startup
  full_scan_on_startup: false
  # IANA timezone for the scan-hour comparison
  timezone: "Local"
  # Files larger than this are skipped during registration
  max_scan_size: "1Gi"
  # Queued contents larger than this are marked skipped instead of uploaded
  max_upload_size: "100Mi"

metadata:
  # PostgREST base URL
  url: "http://localhost:3000"
  # Sent as X-API-Key on every request
  api_key: "change-me"

storage:
  # S3-compatible endpoint (leave empty for AWS)
  endpoint: "http://localhost:9000"
  region: "us-east-1"
  access_key: "change-me"
  secret_key: "change-me"
  # Bucket receiving content-addressed objects (key = SHA-256 hex digest)
  bucket: "files"

# Prometheus metrics server (optional)
metrics:
  enabled: false
  port: 9090

# OpenTelemetry tracing (optional)
telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0
`

// InitConfig creates a sample configuration file at the default location.
// Returns the path the file was written to.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given path.
// Fails if the file already exists unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the sample carries credential placeholders users will fill in.
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
