package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for sync pipeline operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// Filesystem attributes
	AttrPath       = "fs.path"        // Full file path
	AttrFilename   = "fs.filename"    // File name (basename)
	AttrSize       = "fs.size"        // File size in bytes
	AttrSourceRoot = "fs.source_root" // Configured source root

	// Content addressing
	AttrHash = "content.hash" // SHA-256 digest, lowercase hex
	AttrMime = "content.mime" // Inferred MIME type

	// Pipeline attributes
	AttrAction  = "sync.action"  // registered, unchanged, skipped, error
	AttrReason  = "sync.reason"  // skip/failure reason
	AttrBatch   = "sync.batch"   // batch size for queue operations
	AttrAttempt = "sync.attempt" // retry attempt number

	// Metadata store (PostgREST) attributes
	AttrDBOperation = "db.operation" // Gateway operation name
	AttrDBTable     = "db.table"     // files, file_contents
	AttrDBRows      = "db.rows"      // Rows affected/returned

	// Object storage attributes
	AttrBucket = "storage.bucket"
	AttrKey    = "storage.key"
	AttrRegion = "storage.region"
)

// Span names for pipeline operations.
// Format: <component>.<operation>
const (
	SpanScanRun       = "scanner.run"
	SpanScanWalk      = "scanner.walk"
	SpanScanSweep     = "scanner.sweep"
	SpanRegister      = "registrar.process"
	SpanHash          = "registrar.hash"
	SpanUploadBatch   = "uploader.batch"
	SpanUploadPut     = "uploader.put"
	SpanStoragePut    = "storage.put"
	SpanStorageDelete = "storage.delete"
	SpanDBCall        = "db.call"
)

// Path returns an attribute for a file path
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// Filename returns an attribute for a file basename
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// Size returns an attribute for a file size
func Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// SourceRoot returns an attribute for a configured source root
func SourceRoot(root string) attribute.KeyValue {
	return attribute.String(AttrSourceRoot, root)
}

// Hash returns an attribute for a content digest
func Hash(hash string) attribute.KeyValue {
	return attribute.String(AttrHash, hash)
}

// Mime returns an attribute for a MIME type
func Mime(mime string) attribute.KeyValue {
	return attribute.String(AttrMime, mime)
}

// Action returns an attribute for a registrar action
func Action(action string) attribute.KeyValue {
	return attribute.String(AttrAction, action)
}

// Reason returns an attribute for a skip/failure reason
func Reason(reason string) attribute.KeyValue {
	return attribute.String(AttrReason, reason)
}

// Batch returns an attribute for a batch size
func Batch(n int) attribute.KeyValue {
	return attribute.Int(AttrBatch, n)
}

// Attempt returns an attribute for a retry attempt number
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// DBOperation returns an attribute for a gateway operation name
func DBOperation(op string) attribute.KeyValue {
	return attribute.String(AttrDBOperation, op)
}

// DBTable returns an attribute for a metadata table name
func DBTable(table string) attribute.KeyValue {
	return attribute.String(AttrDBTable, table)
}

// DBRows returns an attribute for rows affected or returned
func DBRows(n int) attribute.KeyValue {
	return attribute.Int(AttrDBRows, n)
}

// Bucket returns an attribute for an S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for an S3 region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartScanSpan starts a span for a scanner operation.
func StartScanSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// StartRegistrarSpan starts a span for a registrar operation on the given path.
func StartRegistrarSpan(ctx context.Context, name, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Path(path)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}

// StartUploadSpan starts a span for an uploader operation.
func StartUploadSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// StartStorageSpan starts a span for an object-store operation on the given key.
func StartStorageSpan(ctx context.Context, name, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{StorageKey(key)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}

// StartDBSpan starts a span for a metadata gateway call.
func StartDBSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{DBOperation(operation)}, attrs...)
	return StartSpan(ctx, SpanDBCall, trace.WithAttributes(all...))
}
