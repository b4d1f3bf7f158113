// Package uploader implements the durable upload worker. It drains the
// DB-backed queue in small batches and PUTs each blob under its content
// digest. All retry durability lives in the queue: a crash mid-upload leaves
// the row in uploading, which the startup reset flips back to pending.
package uploader

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/casmirror/casmirror/internal/logger"
	"github.com/casmirror/casmirror/internal/telemetry"
	"github.com/casmirror/casmirror/pkg/dbclient"
	"github.com/casmirror/casmirror/pkg/fileinfo"
)

const (
	// DefaultBatchSize is how many queue rows are dequeued per iteration
	DefaultBatchSize = 5

	// DefaultIdleDelay is the sleep after an empty batch
	DefaultIdleDelay = 10 * time.Second

	// DefaultErrorDelay is the backoff after a loop-level failure
	DefaultErrorDelay = 10 * time.Second

	// DefaultMaxUploadSize is the per-file upload gate. Blobs are read
	// fully into memory, so this bounds worker memory, not queue intake.
	DefaultMaxUploadSize = 100 << 20

	fallbackMime = "application/octet-stream"
)

// DB is the subset of the metadata gateway the uploader needs.
type DB interface {
	ResetStuckUploads(ctx context.Context) (int, error)
	DequeueUploadBatch(ctx context.Context, batchSize int, pathPrefixes []string) ([]dbclient.UploadItem, error)
	MarkUploadComplete(ctx context.Context, contentHash, storagePath, mimeType string) error
	MarkUploadFailed(ctx context.Context, contentHash, uploadErr string) error
	MarkUploadSkipped(ctx context.Context, contentHash, reason string) error
}

// BlobStore is the object-store surface the uploader needs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Metrics is an optional collector for upload outcomes. A nil Metrics means
// zero overhead.
type Metrics interface {
	ObserveUpload(status string, bytes int64, duration time.Duration)
}

// Config configures a Worker.
type Config struct {
	// NewDB builds a metadata gateway. Called at startup and again after a
	// loop-level failure; the worker never reuses a gateway across failures.
	NewDB func() DB

	// NewStore builds the object-store gateway, re-invoked the same way
	NewStore func(ctx context.Context) (BlobStore, error)

	// SourcePrefixes restricts the dequeue to content reachable from these
	// roots, so replicas on different hosts only upload what they can read
	SourcePrefixes []string

	// BatchSize is the dequeue size (default: 5)
	BatchSize int

	// MaxUploadSize is the per-file size gate in bytes (default: 100 MiB)
	MaxUploadSize int64

	// IdleDelay is the sleep after an empty batch (default: 10s)
	IdleDelay time.Duration

	// ErrorDelay is the backoff after a loop-level failure (default: 10s)
	ErrorDelay time.Duration

	// Metrics is an optional metrics collector
	Metrics Metrics
}

// Worker drains the upload queue until its context is cancelled.
type Worker struct {
	newDB      func() DB
	newStore   func(ctx context.Context) (BlobStore, error)
	prefixes   []string
	batchSize  int
	maxSize    int64
	idleDelay  time.Duration
	errorDelay time.Duration
	metrics    Metrics

	db        DB
	store     BlobStore
	resetDone bool
}

// New creates an upload worker.
func New(cfg Config) (*Worker, error) {
	if cfg.NewDB == nil {
		return nil, fmt.Errorf("metadata gateway factory is required")
	}
	if cfg.NewStore == nil {
		return nil, fmt.Errorf("blob store factory is required")
	}
	if len(cfg.SourcePrefixes) == 0 {
		return nil, fmt.Errorf("at least one source prefix is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxSize := cfg.MaxUploadSize
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	idleDelay := cfg.IdleDelay
	if idleDelay <= 0 {
		idleDelay = DefaultIdleDelay
	}
	errorDelay := cfg.ErrorDelay
	if errorDelay <= 0 {
		errorDelay = DefaultErrorDelay
	}

	return &Worker{
		newDB:      cfg.NewDB,
		newStore:   cfg.NewStore,
		prefixes:   cfg.SourcePrefixes,
		batchSize:  batchSize,
		maxSize:    maxSize,
		idleDelay:  idleDelay,
		errorDelay: errorDelay,
		metrics:    cfg.Metrics,
	}, nil
}

// Run loops until ctx is cancelled. Loop-level failures are logged, backed
// off, and followed by gateway reconstruction; they never terminate the
// worker.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("uploader started",
		logger.KeyComponent, "uploader",
		logger.KeyCount, len(w.prefixes),
		"batch_size", w.batchSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.ensureClients(ctx); err != nil {
			w.loopError(ctx, err)
			continue
		}

		if !w.resetDone {
			n, err := w.db.ResetStuckUploads(ctx)
			if err != nil {
				w.loopError(ctx, err)
				continue
			}
			logger.Infof("Reset %d stuck uploads on startup", n)
			w.resetDone = true
		}

		batch, err := w.db.DequeueUploadBatch(ctx, w.batchSize, w.prefixes)
		if err != nil {
			w.loopError(ctx, err)
			continue
		}
		if len(batch) == 0 {
			w.sleep(ctx, w.idleDelay)
			continue
		}

		bctx, span := telemetry.StartUploadSpan(ctx, telemetry.SpanUploadBatch,
			telemetry.Batch(len(batch)))
		for _, item := range batch {
			w.processItem(bctx, item)
		}
		span.End()
	}
}

// ensureClients rebuilds whichever gateway a previous failure tore down.
func (w *Worker) ensureClients(ctx context.Context) error {
	if w.db == nil {
		w.db = w.newDB()
	}
	if w.store == nil {
		store, err := w.newStore(ctx)
		if err != nil {
			return fmt.Errorf("failed to build blob store: %w", err)
		}
		w.store = store
	}
	return nil
}

// processItem uploads one dequeued content row and records the outcome.
// Per-item failures are recorded via mark_upload_failed and never abort the
// batch.
func (w *Worker) processItem(ctx context.Context, item dbclient.UploadItem) {
	ctx, span := telemetry.StartUploadSpan(ctx, telemetry.SpanUploadPut,
		telemetry.Hash(item.ContentHash),
		telemetry.Path(item.FullPath))
	defer span.End()

	start := time.Now()

	st, err := os.Stat(item.FullPath)
	if err != nil {
		logger.Warn("upload source missing on disk",
			logger.KeyComponent, "uploader",
			logger.KeyPath, item.FullPath,
			logger.KeyHash, item.ContentHash)
		w.recordFailure(ctx, item.ContentHash, "File missing on disk")
		w.observe("failed", 0, start)
		return
	}

	if st.Size() > w.maxSize {
		reason := fmt.Sprintf("File too large: %.0fMB (max %.0fMB)",
			float64(st.Size())/(1<<20), float64(w.maxSize)/(1<<20))
		if err := w.db.MarkUploadSkipped(ctx, item.ContentHash, reason); err != nil {
			logger.Error("failed to mark upload skipped",
				logger.KeyHash, item.ContentHash,
				logger.KeyError, err.Error())
		}
		logger.Warn("upload skipped",
			logger.KeyComponent, "uploader",
			logger.KeyPath, item.FullPath,
			logger.KeyReason, reason)
		w.observe("skipped", 0, start)
		return
	}

	data, err := os.ReadFile(item.FullPath)
	if err != nil {
		w.recordFailure(ctx, item.ContentHash, fmt.Sprintf("read failed: %v", err))
		w.observe("failed", 0, start)
		return
	}

	mime := item.MimeType
	if mime == "" {
		mime = fileinfo.MimeByExtension(item.FullPath)
	}
	if mime == "" {
		mime = fallbackMime
	}

	// Key = digest: a second path with the same content overwrites the
	// identical blob, so the PUT is idempotent.
	if err := w.store.Put(ctx, item.ContentHash, data, mime); err != nil {
		w.recordFailure(ctx, item.ContentHash, err.Error())
		w.observe("failed", 0, start)
		return
	}

	if err := w.db.MarkUploadComplete(ctx, item.ContentHash, item.ContentHash, mime); err != nil {
		// The blob is durable; only the status row lags. Recording a
		// failure returns the row to pending and the next attempt's PUT
		// overwrites the same key.
		w.recordFailure(ctx, item.ContentHash, fmt.Sprintf("status update failed: %v", err))
		w.observe("failed", int64(len(data)), start)
		return
	}

	logger.Info("uploaded",
		logger.KeyComponent, "uploader",
		logger.KeyPath, item.FullPath,
		logger.KeyHash, item.ContentHash,
		logger.KeySize, st.Size(),
		logger.KeyMime, mime,
		logger.KeyDurationMs, logger.Duration(start))
	w.observe("uploaded", int64(len(data)), start)
}

func (w *Worker) recordFailure(ctx context.Context, contentHash, msg string) {
	if err := w.db.MarkUploadFailed(ctx, contentHash, msg); err != nil {
		logger.Error("failed to mark upload failed",
			logger.KeyHash, contentHash,
			logger.KeyError, err.Error())
	}
}

func (w *Worker) observe(status string, bytes int64, start time.Time) {
	if w.metrics != nil {
		w.metrics.ObserveUpload(status, bytes, time.Since(start))
	}
}

// loopError backs off and tears down both gateways so the next iteration
// reconstructs them from scratch.
func (w *Worker) loopError(ctx context.Context, err error) {
	logger.Error("uploader loop error",
		logger.KeyComponent, "uploader",
		logger.KeyError, err.Error())
	w.sleep(ctx, w.errorDelay)
	w.db = nil
	w.store = nil
	w.resetDone = false
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
