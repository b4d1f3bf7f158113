// Package scanner implements the full reconciliation scan: walk every source
// root, register each regular file, then soft-delete the paths the scan did
// not see. The sweep compares last_seen_at against the scan start timestamp,
// captured before the path map fetch, so concurrent watcher registrations
// are never swept.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/casmirror/casmirror/internal/logger"
	"github.com/casmirror/casmirror/internal/telemetry"
	"github.com/casmirror/casmirror/pkg/registrar"
)

// DefaultWorkers is the scan pool size when none is configured.
const DefaultWorkers = 6

// skipDirNames are system directories never descended into. Any other
// dot-prefixed name is skipped as well.
var skipDirNames = map[string]struct{}{
	"@eaDir":                    {},
	"#recycle":                  {},
	".SynologyWorkingDirectory": {},
}

// DB is the metadata gateway surface a scan needs: the registrar operations
// plus the scan-wide path map fetch and soft-delete sweep.
type DB interface {
	registrar.DB
	FetchPathMap(ctx context.Context) (map[string]string, error)
	MarkDeleted(ctx context.Context, pathPrefix string, before time.Time) (int, error)
}

// Metrics is an optional collector for scan outcomes. A nil Metrics means
// zero overhead.
type Metrics interface {
	ObserveScan(stats Stats)
}

// Stats summarizes one reconciliation scan.
type Stats struct {
	TotalFiles  int
	Registered  int
	Updated     int
	Unchanged   int
	Skipped     int
	SoftDeleted int
	Errors      int
	Duration    time.Duration
}

// DurationHuman formats the scan duration for the summary line.
func (s Stats) DurationHuman() string {
	d := s.Duration.Seconds()
	switch {
	case d < 60:
		return fmt.Sprintf("%.1fs", d)
	case d < 3600:
		return fmt.Sprintf("%.1fm", d/60)
	default:
		return fmt.Sprintf("%.1fh", d/3600)
	}
}

// Config configures a Scanner.
type Config struct {
	// Roots are the source roots to reconcile. Roots that do not exist are
	// warned about and skipped.
	Roots []string

	// Workers is the registration pool size (default: 6)
	Workers int

	// MaxFileSize is the registration size gate in bytes
	// (default: registrar.DefaultMaxFileSize)
	MaxFileSize int64

	// NewDB builds a metadata gateway. Called once for the coordinator and
	// once per worker; gateways are never shared across goroutines.
	NewDB func() DB

	// Metrics is an optional metrics collector
	Metrics Metrics
}

// Scanner runs full reconciliation scans.
type Scanner struct {
	roots   []string
	workers int
	maxSize int64
	newDB   func() DB
	metrics Metrics
}

type task struct {
	path string
	base string
}

// New creates a scanner.
func New(cfg Config) (*Scanner, error) {
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("at least one source root is required")
	}
	if cfg.NewDB == nil {
		return nil, fmt.Errorf("metadata gateway factory is required")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Scanner{
		roots:   cfg.Roots,
		workers: workers,
		maxSize: cfg.MaxFileSize,
		newDB:   cfg.NewDB,
		metrics: cfg.Metrics,
	}, nil
}

// Run executes one full scan. A cancelled context aborts registration and
// skips the sweep; partially scanned roots must never soft-delete the files
// the walk did not reach.
func (s *Scanner) Run(ctx context.Context) (Stats, error) {
	ctx, span := telemetry.StartScanSpan(ctx, telemetry.SpanScanRun)
	defer span.End()

	started := time.Now()
	scanStart := started.UTC()

	db := s.newDB()

	logger.Info("full scan: loading path map", logger.KeyComponent, "scanner")
	pathMap, err := db.FetchPathMap(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load path map: %w", err)
	}
	snapshot := registrar.NewPathMap(pathMap)
	logger.Info("full scan: loaded existing paths",
		logger.KeyComponent, "scanner",
		logger.KeyCount, snapshot.Len())

	tasks, walkedRoots := s.collect(ctx)

	stats := Stats{TotalFiles: len(tasks)}
	logger.Info("full scan: found files",
		logger.KeyComponent, "scanner",
		logger.KeyCount, stats.TotalFiles)

	if len(tasks) > 0 {
		s.registerAll(ctx, tasks, snapshot, &stats)
	}

	if err := ctx.Err(); err != nil {
		stats.Duration = time.Since(started)
		return stats, err
	}

	s.sweep(ctx, db, walkedRoots, scanStart, &stats)

	stats.Duration = time.Since(started)
	logger.Info("full scan complete",
		logger.KeyComponent, "scanner",
		"total", stats.TotalFiles,
		"registered", stats.Registered,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"skipped", stats.Skipped,
		"soft_deleted", stats.SoftDeleted,
		"errors", stats.Errors,
		"duration", stats.DurationHuman())

	if s.metrics != nil {
		s.metrics.ObserveScan(stats)
	}
	return stats, nil
}

// collect walks every root and gathers the regular files to register. It
// also reports which roots were actually walked: a root that is missing at
// scan time, an unmounted share for instance, must not be swept, or every
// row under it would be soft-deleted.
func (s *Scanner) collect(ctx context.Context) ([]task, []string) {
	_, span := telemetry.StartScanSpan(ctx, telemetry.SpanScanWalk)
	defer span.End()

	var tasks []task
	var walked []string
	for _, root := range s.roots {
		if _, err := os.Stat(root); err != nil {
			logger.Warn("source root does not exist, skipping",
				logger.KeySourceRoot, root)
			continue
		}
		walked = append(walked, root)

		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if err != nil {
				return nil
			}
			name := d.Name()
			if d.IsDir() {
				if path != root && shouldSkipDir(name) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return nil
			}
			tasks = append(tasks, task{path: path, base: root})
			return nil
		})
		if walkErr != nil {
			// A cancelled walk leaves the collection partial; Run sees the
			// same ctx error and skips the sweep.
			logger.Warn("walk aborted",
				logger.KeySourceRoot, root,
				logger.KeyError, walkErr.Error())
		}
	}
	return tasks, walked
}

func shouldSkipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := skipDirNames[name]
	return ok
}

// registerAll drives the worker pool over the collected files. Each worker
// owns its own gateway; the snapshot is shared.
func (s *Scanner) registerAll(ctx context.Context, tasks []task, snapshot *registrar.PathMap, stats *Stats) {
	total := len(tasks)
	progressEvery := total / 10
	if progressEvery == 0 {
		progressEvery = 1
	}

	var (
		mu   sync.Mutex
		done int
	)

	taskCh := make(chan task)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			reg, err := registrar.New(registrar.Config{
				DB:          s.newDB(),
				Snapshot:    snapshot,
				MaxFileSize: s.maxSize,
			})
			if err != nil {
				logger.Error("failed to build registrar worker",
					logger.KeyError, err.Error())
				for range taskCh {
					mu.Lock()
					stats.Errors++
					mu.Unlock()
				}
				return
			}

			for tk := range taskCh {
				fullPath := registrar.NormalizePath(tk.path)
				_, known := snapshot.Get(fullPath)

				action, perr := reg.Process(ctx, tk.path, tk.base)

				mu.Lock()
				done++
				n := done
				switch action {
				case registrar.ActionRegistered:
					if known {
						stats.Updated++
					} else {
						stats.Registered++
					}
					logger.Infof("[%d/%d] REG: %s", n, total, fullPath)
				case registrar.ActionUnchanged:
					stats.Unchanged++
				case registrar.ActionSkipped:
					stats.Skipped++
					logger.Warnf("[%d/%d] SKIP: %s: %v", n, total, fullPath, perr)
				default:
					stats.Errors++
					logger.Warnf("[%d/%d] ERR: %s: %v", n, total, fullPath, perr)
				}
				if n%progressEvery == 0 {
					logger.Infof("full scan progress: %d%%", n*100/total)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, tk := range tasks {
		select {
		case taskCh <- tk:
		case <-ctx.Done():
			break feed
		}
	}
	close(taskCh)
	wg.Wait()
}

// sweep soft-deletes the paths under each walked root that this scan did
// not see. A failing root is logged and the remaining roots are still swept.
func (s *Scanner) sweep(ctx context.Context, db DB, roots []string, scanStart time.Time, stats *Stats) {
	ctx, span := telemetry.StartScanSpan(ctx, telemetry.SpanScanSweep)
	defer span.End()

	logger.Info("full scan: marking deleted files", logger.KeyComponent, "scanner")
	for _, root := range roots {
		prefix := registrar.NormalizePath(root)
		n, err := db.MarkDeleted(ctx, prefix, scanStart)
		if err != nil {
			logger.Error("failed to soft-delete unseen files",
				logger.KeySourceRoot, root,
				logger.KeyError, err.Error())
			continue
		}
		stats.SoftDeleted += n
	}
}
