// Package daemon orchestrates the long-running synchronizer: the upload
// worker, the filesystem watcher, and the daily scheduled reconciliation
// scan.
package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/casmirror/casmirror/internal/logger"
	"github.com/casmirror/casmirror/pkg/registrar"
	"github.com/casmirror/casmirror/pkg/scanner"
	"github.com/casmirror/casmirror/pkg/watch"
)

const (
	// DefaultSuperviseInterval is how often the scheduled-scan condition is
	// checked
	DefaultSuperviseInterval = time.Minute

	// DefaultUploaderRestartDelay is the pause before restarting a crashed
	// uploader
	DefaultUploaderRestartDelay = 10 * time.Second

	// DefaultShutdownTimeout bounds the graceful stop
	DefaultShutdownTimeout = 10 * time.Second

	dateLayout = "2006-01-02"
)

// DB is the metadata gateway surface for watcher event batches.
type DB interface {
	registrar.DB
	FetchPathMap(ctx context.Context) (map[string]string, error)
}

// Config configures a Daemon. The component constructors are injected so
// the daemon stays a pure orchestrator.
type Config struct {
	// Roots are the source roots being synchronized
	Roots []string

	// IgnorePatterns are the watcher glob filters
	IgnorePatterns []string

	// Debounce is the watcher event coalescing window
	Debounce time.Duration

	// FullScanHour is the local hour (0-23) for the daily scan
	FullScanHour int

	// FullScanOnStartup runs a scan before the watcher starts
	FullScanOnStartup bool

	// Timezone is the IANA zone for the scan-hour comparison ("Local" by
	// default)
	Timezone string

	// ShutdownTimeout bounds the graceful stop (default: 10s)
	ShutdownTimeout time.Duration

	// MaxFileSize is the registration size gate for watcher events
	MaxFileSize int64

	// NewDB builds a metadata gateway for one watcher batch
	NewDB func() DB

	// RunScan executes one full reconciliation scan
	RunScan func(ctx context.Context) (scanner.Stats, error)

	// RunUploader runs the upload worker until ctx is cancelled
	RunUploader func(ctx context.Context) error

	// WatcherMetrics is an optional collector passed to the watcher
	WatcherMetrics watch.Metrics

	// SuperviseInterval overrides the 1-minute schedule check (tests)
	SuperviseInterval time.Duration

	// UploaderRestartDelay overrides the 10s crash-restart pause (tests)
	UploaderRestartDelay time.Duration

	// Now overrides the clock (tests)
	Now func() time.Time
}

// Daemon runs the synchronizer until its context is cancelled.
type Daemon struct {
	roots           []string
	ignorePatterns  []string
	debounce        time.Duration
	fullScanHour    int
	scanOnStartup   bool
	loc             *time.Location
	shutdownTimeout time.Duration
	maxFileSize     int64

	newDB       func() DB
	runScan     func(ctx context.Context) (scanner.Stats, error)
	runUploader func(ctx context.Context) error
	watchMx     watch.Metrics

	superviseInterval time.Duration
	restartDelay      time.Duration
	now               func() time.Time

	// scanMu serializes scans; lastScanDate limits the scheduled scan to
	// once per day. Both are only touched from the supervision goroutine
	// and startup, but the mutex also protects against overlap if a scan
	// outlives its supervision tick.
	scanMu       sync.Mutex
	lastScanDate string
}

// New creates a daemon. An unknown timezone is a configuration error.
func New(cfg Config) (*Daemon, error) {
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("at least one source root is required")
	}
	if cfg.NewDB == nil {
		return nil, fmt.Errorf("metadata gateway factory is required")
	}
	if cfg.RunScan == nil {
		return nil, fmt.Errorf("scan runner is required")
	}
	if cfg.RunUploader == nil {
		return nil, fmt.Errorf("uploader runner is required")
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "Local"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	superviseInterval := cfg.SuperviseInterval
	if superviseInterval <= 0 {
		superviseInterval = DefaultSuperviseInterval
	}
	restartDelay := cfg.UploaderRestartDelay
	if restartDelay <= 0 {
		restartDelay = DefaultUploaderRestartDelay
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Daemon{
		roots:             cfg.Roots,
		ignorePatterns:    cfg.IgnorePatterns,
		debounce:          cfg.Debounce,
		fullScanHour:      cfg.FullScanHour,
		scanOnStartup:     cfg.FullScanOnStartup,
		loc:               loc,
		shutdownTimeout:   shutdownTimeout,
		maxFileSize:       cfg.MaxFileSize,
		newDB:             cfg.NewDB,
		runScan:           cfg.RunScan,
		runUploader:       cfg.RunUploader,
		watchMx:           cfg.WatcherMetrics,
		superviseInterval: superviseInterval,
		restartDelay:      restartDelay,
		now:               now,
	}, nil
}

// Run starts the uploader, optionally a startup scan, then the watcher, and
// supervises the daily scheduled scan until ctx is cancelled. It returns
// after a graceful stop bounded by the shutdown timeout.
func (d *Daemon) Run(ctx context.Context) error {
	logger.Info("daemon starting",
		logger.KeyComponent, "daemon",
		logger.KeyCount, len(d.roots),
		"full_scan_hour", d.fullScanHour,
		"timezone", d.loc.String())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.superviseUploader(ctx)
	}()

	if d.scanOnStartup {
		d.scan(ctx, "startup")
	}

	watcher, err := watch.New(watch.Config{
		Roots:          d.roots,
		Debounce:       d.debounce,
		IgnorePatterns: d.ignorePatterns,
		OnReady:        d.processEvents,
		Metrics:        d.watchMx,
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(d.superviseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", logger.KeyComponent, "daemon")
			watcher.Stop()
			return d.join(&wg)

		case <-ticker.C:
			now := d.now().In(d.loc)
			if now.Hour() == d.fullScanHour && d.lastScanDate != now.Format(dateLayout) {
				d.scan(ctx, "scheduled")
			}
		}
	}
}

// join waits for background goroutines within the shutdown budget.
func (d *Daemon) join(wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("daemon stopped", logger.KeyComponent, "daemon")
		return nil
	case <-time.After(d.shutdownTimeout):
		logger.Warn("shutdown timeout exceeded", logger.KeyComponent, "daemon")
		return nil
	}
}

// superviseUploader keeps the upload worker alive: any return or panic
// while the daemon is still running is logged and followed by a restart.
func (d *Daemon) superviseUploader(ctx context.Context) {
	for {
		err := d.runUploaderOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Error("uploader exited, restarting",
			logger.KeyComponent, "daemon",
			logger.KeyError, fmt.Sprint(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.restartDelay):
		}
	}
}

func (d *Daemon) runUploaderOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("uploader panic: %v", r)
		}
	}()
	return d.runUploader(ctx)
}

// scan runs one reconciliation scan if none is in flight. A completed scan
// marks the day so the scheduled trigger fires at most once per day.
func (d *Daemon) scan(ctx context.Context, trigger string) {
	if !d.scanMu.TryLock() {
		logger.Warn("scan already running, skipping",
			logger.KeyComponent, "daemon",
			"trigger", trigger)
		return
	}
	defer d.scanMu.Unlock()

	logger.Info("starting full scan",
		logger.KeyComponent, "daemon",
		"trigger", trigger)

	if _, err := d.runScan(ctx); err != nil {
		logger.Error("full scan failed",
			logger.KeyComponent, "daemon",
			logger.KeyError, err.Error())
		return
	}
	d.lastScanDate = d.now().In(d.loc).Format(dateLayout)
}

// processEvents registers one debounced watcher batch. Each batch gets a
// fresh gateway and path map snapshot; batches are small, so the fetch cost
// is dominated by the registration work.
func (d *Daemon) processEvents(ctx context.Context, events []watch.Event) {
	db := d.newDB()
	pathMap, err := db.FetchPathMap(ctx)
	if err != nil {
		logger.Error("failed to load path map for event batch",
			logger.KeyComponent, "watcher",
			logger.KeyError, err.Error())
		return
	}

	reg, err := registrar.New(registrar.Config{
		DB:          db,
		Snapshot:    registrar.NewPathMap(pathMap),
		MaxFileSize: d.maxFileSize,
	})
	if err != nil {
		logger.Error("failed to build registrar",
			logger.KeyComponent, "watcher",
			logger.KeyError, err.Error())
		return
	}

	var registered, unchanged, skipped, errors int
	for _, ev := range events {
		path := ev.Path
		if ev.DestPath != "" {
			path = ev.DestPath
		}
		// Paths can vanish between debounce and processing; the next scan
		// sweeps them
		if _, err := os.Lstat(path); err != nil {
			continue
		}
		base := watch.SourceBase(d.roots, path)
		if base == "" {
			continue
		}

		action, perr := reg.Process(ctx, path, base)
		switch action {
		case registrar.ActionRegistered:
			registered++
			logger.Info("registered",
				logger.KeyComponent, "watcher",
				logger.KeyPath, path)
		case registrar.ActionUnchanged:
			unchanged++
		case registrar.ActionSkipped:
			skipped++
			logger.Warn("skipped",
				logger.KeyComponent, "watcher",
				logger.KeyPath, path,
				logger.KeyReason, fmt.Sprint(perr))
		default:
			errors++
			logger.Warn("registration failed",
				logger.KeyComponent, "watcher",
				logger.KeyPath, path,
				logger.KeyError, fmt.Sprint(perr))
		}
	}

	logger.Info("watcher batch complete",
		logger.KeyComponent, "watcher",
		"registered", registered,
		"unchanged", unchanged,
		"skipped", skipped,
		"errors", errors)
}
