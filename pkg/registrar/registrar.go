// Package registrar implements the content-addressable registration pipeline.
// One file in, at most two metadata writes out: the content row keyed by
// digest, then the path row referencing it. The content row always lands
// first so the path reference never dangles.
package registrar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/casmirror/casmirror/internal/logger"
	"github.com/casmirror/casmirror/internal/telemetry"
	"github.com/casmirror/casmirror/pkg/dbclient"
	"github.com/casmirror/casmirror/pkg/fileinfo"
	"github.com/casmirror/casmirror/pkg/hash"
)

// DefaultMaxFileSize is the registration size gate. Larger files are
// skipped before hashing.
const DefaultMaxFileSize = 1 << 30

// Action is the outcome of processing one file.
type Action string

const (
	ActionRegistered Action = "registered"
	ActionUnchanged  Action = "unchanged"
	ActionSkipped    Action = "skipped"
	ActionError      Action = "error"
)

// SkipError reports a file rejected by the registration gate: a symlink
// escaping its source root, an oversized file, or a file we cannot stat.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}

// DB is the subset of the metadata gateway the registrar needs.
type DB interface {
	TouchFile(ctx context.Context, fullPath string) error
	UpsertContent(ctx context.Context, contentHash string, sizeBytes int64, mimeType string) error
	UpsertFile(ctx context.Context, rec *dbclient.FileRecord) error
}

// Config configures a Registrar.
type Config struct {
	// DB is the metadata gateway
	DB DB

	// Snapshot is the shared path map consulted for the cheap unchanged
	// path. Workers processing the same scan share one snapshot.
	Snapshot *PathMap

	// MaxFileSize is the registration size gate in bytes
	// (default: 1 GiB)
	MaxFileSize int64
}

// Registrar registers files against the metadata store.
type Registrar struct {
	db       DB
	snapshot *PathMap
	maxSize  int64
}

// New creates a registrar.
func New(cfg Config) (*Registrar, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("metadata gateway is required")
	}
	if cfg.Snapshot == nil {
		return nil, fmt.Errorf("path map snapshot is required")
	}

	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Registrar{
		db:       cfg.DB,
		snapshot: cfg.Snapshot,
		maxSize:  maxSize,
	}, nil
}

// Process registers one file. The returned action is always meaningful,
// even when err is non-nil: skipped carries a *SkipError with the reason,
// error carries the underlying failure.
//
// Re-running Process on an unchanged file is cheap: the digest matches the
// snapshot and only last_seen_at is advanced.
func (r *Registrar) Process(ctx context.Context, path, sourceBase string) (Action, error) {
	ctx, span := telemetry.StartRegistrarSpan(ctx, telemetry.SpanRegister, path,
		telemetry.SourceRoot(sourceBase))
	defer span.End()

	fullPath := NormalizePath(path)

	if err := r.gate(path, sourceBase); err != nil {
		telemetry.RecordError(ctx, err)
		return ActionSkipped, err
	}

	digest, err := hash.SumFile(path)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return ActionError, fmt.Errorf("hash failed: %w", err)
	}
	span.SetAttributes(telemetry.Hash(digest))

	if prev, ok := r.snapshot.Get(fullPath); ok && prev == digest {
		if err := r.db.TouchFile(ctx, fullPath); err != nil {
			// The row stays correct, only its sweep protection lags;
			// the next scan or event repairs it.
			logger.Warn("failed to advance last_seen_at",
				logger.KeyPath, fullPath,
				logger.KeyError, err.Error())
		}
		return ActionUnchanged, nil
	}

	info, err := fileinfo.Extract(path, sourceBase)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return ActionError, fmt.Errorf("metadata extraction failed: %w", err)
	}

	// Content row before file row: the path reference must always resolve
	if err := r.db.UpsertContent(ctx, digest, info.Size, info.Mime); err != nil {
		telemetry.RecordError(ctx, err)
		return ActionError, err
	}

	rec := &dbclient.FileRecord{
		FullPath:     fullPath,
		ContentHash:  digest,
		Filename:     info.Filename,
		FolderPath:   info.FolderPath,
		FsCreatedAt:  info.CreatedAt,
		FsModifiedAt: info.ModifiedAt,
		FsInode:      info.Inode,
		FsAttributes: info.Attributes,
		AutoMetadata: info.AutoMetadata,
		LastSeenAt:   time.Now().UTC(),
		DeletedAt:    nil,
	}
	if err := r.db.UpsertFile(ctx, rec); err != nil {
		telemetry.RecordError(ctx, err)
		return ActionError, err
	}

	r.snapshot.Set(fullPath, digest)
	return ActionRegistered, nil
}

// gate rejects files the registrar must not read: symlinks resolving outside
// the source root and files over the size limit. Sizes come from Lstat so a
// symlink is judged by its own size, not its target's.
func (r *Registrar) gate(path, sourceBase string) error {
	st, err := os.Lstat(path)
	if err != nil {
		return &SkipError{Reason: fmt.Sprintf("cannot stat file: %v", err)}
	}

	if st.Mode()&os.ModeSymlink != 0 {
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return &SkipError{Reason: fmt.Sprintf("symlink resolution failed: %v", err)}
		}
		baseReal, err := filepath.EvalSymlinks(sourceBase)
		if err != nil {
			return &SkipError{Reason: fmt.Sprintf("source base resolution failed: %v", err)}
		}
		rel, relErr := filepath.Rel(baseReal, real)
		if relErr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return &SkipError{Reason: fmt.Sprintf("symlink escape: %s -> %s", path, real)}
		}
	}

	if st.Size() > r.maxSize {
		return &SkipError{Reason: fmt.Sprintf(
			"file too large: %.2fGB > %.2fGB limit",
			float64(st.Size())/(1<<30), float64(r.maxSize)/(1<<30))}
	}
	return nil
}

// NormalizePath ensures a full path carries a leading slash. Database keys
// and sweep prefixes both use this form.
func NormalizePath(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
