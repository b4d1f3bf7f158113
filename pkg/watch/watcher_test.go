package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) collect(_ context.Context, evs []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evs...)
}

// find returns the most recently delivered event for path.
func (c *collector) find(path string) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Path == path {
			return c.events[i], true
		}
	}
	return Event{}, false
}

type fakeMetrics struct {
	mu     sync.Mutex
	kinds  []string
	depths []int
}

func (m *fakeMetrics) RecordEvent(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
}

func (m *fakeMetrics) SetQueueDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = append(m.depths, depth)
}

func newTestWatcher(t *testing.T, root string, c *collector, m Metrics) *Watcher {
	t.Helper()

	w, err := New(Config{
		Roots:          []string{root},
		Debounce:       50 * time.Millisecond,
		IgnorePatterns: []string{"*.tmp"},
		OnReady:        c.collect,
		PollInterval:   20 * time.Millisecond,
		Metrics:        m,
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{OnReady: func(context.Context, []Event) {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root")

	_, err = New(Config{Roots: []string{"/data"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OnReady")
}

func TestWatcherDeliversEvents(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	m := &fakeMetrics{}
	newTestWatcher(t, root, c, m)

	// A bare create with no write should arrive as created
	path := filepath.Join(root, "report.pdf")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		e, ok := c.find(path)
		return ok && e.Kind == KindCreated
	}, 3*time.Second, 20*time.Millisecond, "created event not delivered")

	// A write to the now-known file should arrive as modified
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	require.Eventually(t, func() bool {
		e, ok := c.find(path)
		return ok && e.Kind == KindModified
	}, 3*time.Second, 20*time.Millisecond, "modified event not delivered")

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotEmpty(t, m.kinds)
}

func TestWatcherCoalescesBurst(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	newTestWatcher(t, root, c, nil)

	path := filepath.Join(root, "log.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("chunk"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		_, ok := c.find(path)
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	// Everything within one debounce window collapses into a single event
	c.mu.Lock()
	count := 0
	for _, e := range c.events {
		if e.Path == path {
			count++
		}
	}
	c.mu.Unlock()
	assert.Equal(t, 1, count, "burst should coalesce into one event")
}

func TestWatcherIgnoresFilteredPaths(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	newTestWatcher(t, root, c, nil)

	ignored := filepath.Join(root, "scratch.tmp")
	hidden := filepath.Join(root, ".env")
	real := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(ignored, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(hidden, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(real, []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		_, ok := c.find(real)
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	_, ok := c.find(ignored)
	assert.False(t, ok, "pattern-ignored file must not be delivered")
	_, ok = c.find(hidden)
	assert.False(t, ok, "hidden file must not be delivered")
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	newTestWatcher(t, root, c, nil)

	sub := filepath.Join(root, "incoming")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Give the watcher a moment to pick up the new directory
	time.Sleep(200 * time.Millisecond)

	inner := filepath.Join(sub, "photo.jpg")
	require.NoError(t, os.WriteFile(inner, []byte("jpeg"), 0o644))

	require.Eventually(t, func() bool {
		_, ok := c.find(inner)
		return ok
	}, 3*time.Second, 20*time.Millisecond, "file in new subdirectory not delivered")
}

func TestWatcherMissingRoots(t *testing.T) {
	c := &collector{}

	w, err := New(Config{
		Roots:   []string{"/nonexistent/a", "/nonexistent/b"},
		OnReady: c.collect,
	})
	require.NoError(t, err)
	err = w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the configured watch roots")

	// One valid root out of two is enough to start
	root := t.TempDir()
	w, err = New(Config{
		Roots:   []string{"/nonexistent/a", root},
		OnReady: c.collect,
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}

func TestSourceBase(t *testing.T) {
	w, err := New(Config{
		Roots:   []string{"/mnt/photos", "/mnt/docs"},
		OnReady: func(context.Context, []Event) {},
	})
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{"/mnt/photos/2025/img.jpg", "/mnt/photos"},
		{"/mnt/docs/report.pdf", "/mnt/docs"},
		{"/mnt/photos", "/mnt/photos"},
		{"/mnt/music/track.mp3", ""},
		{"/mnt/photosx/img.jpg", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.SourceBase(tt.path), "SourceBase(%q)", tt.path)
	}
}
