package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/casmirror/casmirror/internal/logger"
)

const defaultPollInterval = 500 * time.Millisecond

// Metrics is an optional collector for watcher activity. A nil Metrics means
// zero overhead.
type Metrics interface {
	// RecordEvent records one queued event by kind
	RecordEvent(kind string)

	// SetQueueDepth records the current debounce queue depth
	SetQueueDepth(depth int)
}

// Config configures a Watcher.
type Config struct {
	// Roots are the directories to watch recursively. Roots that do not
	// exist are warned about and skipped; Start fails only if none remain.
	Roots []string

	// Debounce is how long a path must stay quiet before its pending event
	// is handed to OnReady (default: 3s)
	Debounce time.Duration

	// IgnorePatterns are glob patterns matched against basenames and full
	// paths. Hidden (dot-prefixed) components are always ignored.
	IgnorePatterns []string

	// OnReady receives each debounced batch of events
	OnReady func(ctx context.Context, events []Event)

	// PollInterval is how often the queue is drained (default: 500ms)
	PollInterval time.Duration

	// Metrics is an optional metrics collector
	Metrics Metrics
}

// Watcher watches a set of directory roots recursively and delivers
// debounced file events to a callback. Renames within the watched tree
// surface as a create at the destination; the vanished source path is
// reconciled by the periodic full scan.
type Watcher struct {
	roots   []string
	filter  *Filter
	queue   *Queue
	onReady func(ctx context.Context, events []Event)
	poll    time.Duration
	metrics Metrics

	fsw      *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher. It does not touch the filesystem until Start.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("at least one watch root is required")
	}
	if cfg.OnReady == nil {
		return nil, fmt.Errorf("OnReady callback is required")
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Watcher{
		roots:   cfg.Roots,
		filter:  NewFilter(cfg.IgnorePatterns),
		queue:   NewQueue(debounce),
		onReady: cfg.OnReady,
		poll:    poll,
		metrics: cfg.Metrics,
		stop:    make(chan struct{}),
	}, nil
}

// Start begins watching. The context is passed through to the OnReady
// callback; cancelling it does not stop the watcher, Stop does.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w.fsw = fsw

	watched := 0
	for _, root := range w.roots {
		if _, err := os.Stat(root); err != nil {
			logger.Warn("watch root does not exist, skipping",
				logger.KeySourceRoot, root)
			continue
		}
		if err := w.watchRecursive(root); err != nil {
			fsw.Close()
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		logger.Info("watching", logger.KeySourceRoot, root)
		watched++
	}
	if watched == 0 {
		fsw.Close()
		return fmt.Errorf("none of the configured watch roots exist")
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.processLoop(ctx)

	logger.Info("watcher started",
		logger.KeyComponent, "watcher",
		logger.KeyCount, watched,
		"debounce", w.queue.debounce.String())
	return nil
}

// Stop stops the watcher and waits for its goroutines to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.fsw != nil {
			w.fsw.Close()
		}
	})
	w.wg.Wait()
	logger.Info("watcher stopped", logger.KeyComponent, "watcher")
}

// PendingCount returns the number of events waiting out the debounce window.
func (w *Watcher) PendingCount() int {
	return w.queue.PendingCount()
}

// SourceBase returns the watch root containing path, or "" if none does.
func (w *Watcher) SourceBase(path string) string {
	return SourceBase(w.roots, path)
}

// SourceBase returns the first root containing path, or "" if none does.
func SourceBase(roots []string, path string) string {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return root
	}
	return ""
}

// watchRecursive adds root and every non-ignored directory under it to the
// underlying watcher.
func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.filter.Match(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			logger.Warn("failed to watch directory",
				logger.KeyPath, path,
				logger.KeyError, err.Error())
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", logger.KeyError, err.Error())

		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// Removes and renames are left to the full scan's soft-delete sweep.
	// A rename destination arrives as its own Create event; if the source
	// was in an ignored location, that Create is all we ever see, which is
	// exactly the right outcome.
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if w.filter.Match(ev.Name) {
		return
	}

	info, err := os.Lstat(ev.Name)
	if err != nil {
		// Vanished before we could look at it
		return
	}

	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			if err := w.watchRecursive(ev.Name); err != nil {
				logger.Warn("failed to watch new directory",
					logger.KeyPath, ev.Name,
					logger.KeyError, err.Error())
			}
		}
		return
	}

	kind := KindModified
	if ev.Op&fsnotify.Create != 0 {
		kind = KindCreated
	}

	w.queue.Add(Event{Path: ev.Name, Kind: kind, Timestamp: time.Now()})
	if w.metrics != nil {
		w.metrics.RecordEvent(string(kind))
	}
	logger.Debug("event queued",
		logger.KeyPath, ev.Name,
		logger.KeyAction, string(kind))
}

func (w *Watcher) processLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ready := w.queue.GetReady()
			if w.metrics != nil {
				w.metrics.SetQueueDepth(w.queue.PendingCount())
			}
			if len(ready) == 0 {
				continue
			}
			logger.Info("processing filesystem events",
				logger.KeyComponent, "watcher",
				logger.KeyCount, len(ready),
				"pending", w.queue.PendingCount())
			w.onReady(ctx, ready)

		case <-w.stop:
			return
		}
	}
}
