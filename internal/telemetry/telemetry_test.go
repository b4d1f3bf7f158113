package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "casmirror", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.False(t, IsEnabled())
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerReturnsNoOp(t *testing.T) {
	tr := Tracer()
	require.NotNil(t, tr)

	// A no-op tracer still produces usable spans
	ctx, span := tr.Start(context.Background(), "test-span")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test-operation")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	// Without a span, returns a no-op span rather than nil
	span := SpanFromContext(context.Background())
	require.NotNil(t, span)

	ctx, created := StartSpan(context.Background(), "parent")
	defer created.End()

	got := SpanFromContext(ctx)
	require.NotNil(t, got)
}

func TestAddEvent(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "with-events")
	defer span.End()

	// Must not panic on no-op spans
	AddEvent(ctx, "file.hashed", Hash("deadbeef"))
	AddEvent(context.Background(), "no-span")
}

func TestRecordError(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "with-error")
	defer span.End()

	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	RecordError(context.Background(), errors.New("no span"))
}

func TestSetStatus(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "with-status")
	defer span.End()

	SetStatus(ctx, codes.Ok, "done")
	SetStatus(context.Background(), codes.Error, "no span")
}

func TestSetAttributes(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "with-attrs")
	defer span.End()

	SetAttributes(ctx, Path("/data/a.txt"), Size(42))
	SetAttributes(context.Background(), Action("registered"))
}

func TestTraceID(t *testing.T) {
	// No active span: empty string
	assert.Empty(t, TraceID(context.Background()))
}

func TestSpanID(t *testing.T) {
	assert.Empty(t, SpanID(context.Background()))
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr attribute.KeyValue
		key  string
		want any
	}{
		{"Path", Path("/data/report.pdf"), AttrPath, "/data/report.pdf"},
		{"Filename", Filename("report.pdf"), AttrFilename, "report.pdf"},
		{"Size", Size(1024), AttrSize, int64(1024)},
		{"SourceRoot", SourceRoot("/mnt/share"), AttrSourceRoot, "/mnt/share"},
		{"Hash", Hash("deadbeef"), AttrHash, "deadbeef"},
		{"Mime", Mime("application/pdf"), AttrMime, "application/pdf"},
		{"Action", Action("registered"), AttrAction, "registered"},
		{"Reason", Reason("too_large"), AttrReason, "too_large"},
		{"Batch", Batch(5), AttrBatch, int64(5)},
		{"Attempt", Attempt(3), AttrAttempt, int64(3)},
		{"DBOperation", DBOperation("upsert_file"), AttrDBOperation, "upsert_file"},
		{"DBTable", DBTable("files"), AttrDBTable, "files"},
		{"DBRows", DBRows(7), AttrDBRows, int64(7)},
		{"Bucket", Bucket("files"), AttrBucket, "files"},
		{"StorageKey", StorageKey("deadbeef"), AttrKey, "deadbeef"},
		{"Region", Region("us-east-1"), AttrRegion, "us-east-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, string(tt.attr.Key))
			switch want := tt.want.(type) {
			case string:
				assert.Equal(t, want, tt.attr.Value.AsString())
			case int64:
				assert.Equal(t, want, tt.attr.Value.AsInt64())
			default:
				t.Fatalf("unhandled want type %T", tt.want)
			}
		})
	}
}

func TestStartScanSpan(t *testing.T) {
	ctx, span := StartScanSpan(context.Background(), SpanScanRun, SourceRoot("/mnt/share"))
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestStartRegistrarSpan(t *testing.T) {
	ctx, span := StartRegistrarSpan(context.Background(), SpanRegister, "/data/a.txt", Size(512))
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestStartStorageSpan(t *testing.T) {
	ctx, span := StartStorageSpan(context.Background(), SpanStoragePut, "deadbeef", Bucket("files"))
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestStartUploadSpan(t *testing.T) {
	ctx, span := StartUploadSpan(context.Background(), SpanUploadBatch, Batch(5))
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestStartDBSpan(t *testing.T) {
	ctx, span := StartDBSpan(context.Background(), "dequeue_upload_batch", DBRows(5))
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}
