package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so scan and upload
// activity can be aggregated and queried downstream.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Pipeline identification
	KeyComponent = "component" // Pipeline component: watcher, scanner, registrar, uploader
	KeyAction    = "action"    // Action performed: registered, unchanged, skipped, error, upload
	KeyReason    = "reason"    // Skip/failure reason

	// Filesystem
	KeyPath       = "path"        // Full file path
	KeyFilename   = "filename"    // File basename
	KeyOldPath    = "old_path"    // Source path for move events
	KeyNewPath    = "new_path"    // Destination path for move events
	KeySourceRoot = "source_root" // Source root the path belongs to
	KeySize       = "size"        // File size in bytes

	// Content addressing
	KeyHash   = "hash"   // Content digest (lowercase hex SHA-256)
	KeyMime   = "mime"   // Inferred MIME type
	KeyStatus = "status" // Upload status: pending, uploading, uploaded, failed, skipped

	// Object store
	KeyBucket = "bucket" // S3 bucket name
	KeyKey    = "key"    // Object key in the bucket
	KeyRegion = "region" // S3 region

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyCount      = "count"       // Generic count (events, rows, files)
)

// Field constructors for type safety.

// Component returns a slog.Attr for the pipeline component
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Action returns a slog.Attr for the action performed
func Action(a string) slog.Attr {
	return slog.String(KeyAction, a)
}

// Reason returns a slog.Attr for a skip or failure reason
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

// Path returns a slog.Attr for a file path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Filename returns a slog.Attr for a file basename
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// OldPath returns a slog.Attr for the source path of a move
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for the destination path of a move
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// SourceRoot returns a slog.Attr for a configured source root
func SourceRoot(p string) slog.Attr {
	return slog.String(KeySourceRoot, p)
}

// Size returns a slog.Attr for a file size
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Hash returns a slog.Attr for a content digest
func Hash(h string) slog.Attr {
	return slog.String(KeyHash, h)
}

// Mime returns a slog.Attr for a MIME type
func Mime(m string) slog.Attr {
	return slog.String(KeyMime, m)
}

// Status returns a slog.Attr for an upload status
func Status(s string) slog.Attr {
	return slog.String(KeyStatus, s)
}

// Bucket returns a slog.Attr for an S3 bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for an S3 region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Count returns a slog.Attr for a generic count
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}
