package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casmirror/casmirror/pkg/dbclient"
	"github.com/casmirror/casmirror/pkg/registrar"
)

type sweepCall struct {
	prefix string
	before time.Time
}

// fakeGateway implements DB. One instance backs all workers of a test scan,
// which also exercises the shared-snapshot paths.
type fakeGateway struct {
	mu       sync.Mutex
	pathMap  map[string]string
	fetched  time.Time
	touched  []string
	contents map[string]int64
	files    map[string]*dbclient.FileRecord
	sweeps   []sweepCall
	perSweep int
}

func newFakeGateway(pathMap map[string]string) *fakeGateway {
	if pathMap == nil {
		pathMap = make(map[string]string)
	}
	return &fakeGateway{
		pathMap:  pathMap,
		contents: make(map[string]int64),
		files:    make(map[string]*dbclient.FileRecord),
	}
}

func (g *fakeGateway) FetchPathMap(context.Context) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetched = time.Now().UTC()
	out := make(map[string]string, len(g.pathMap))
	for k, v := range g.pathMap {
		out[k] = v
	}
	return out, nil
}

func (g *fakeGateway) TouchFile(_ context.Context, fullPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.touched = append(g.touched, fullPath)
	return nil
}

func (g *fakeGateway) UpsertContent(_ context.Context, contentHash string, sizeBytes int64, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contents[contentHash] = sizeBytes
	return nil
}

func (g *fakeGateway) UpsertFile(_ context.Context, rec *dbclient.FileRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files[rec.FullPath] = rec
	return nil
}

func (g *fakeGateway) MarkDeleted(_ context.Context, pathPrefix string, before time.Time) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweeps = append(g.sweeps, sweepCall{prefix: pathPrefix, before: before})
	return g.perSweep, nil
}

func newTestScanner(t *testing.T, g *fakeGateway, roots ...string) *Scanner {
	t.Helper()
	s, err := New(Config{
		Roots:   roots,
		Workers: 2,
		NewDB:   func() DB { return g },
	})
	require.NoError(t, err)
	return s
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{NewDB: func() DB { return newFakeGateway(nil) }})
	require.Error(t, err)

	_, err = New(Config{Roots: []string{"/data"}})
	require.Error(t, err)
}

func TestScanRegistersTree(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":            "alpha",
		"docs/b.txt":       "beta",
		".hidden":          "nope",
		"@eaDir/thumb.jpg": "nope",
		"#recycle/old.txt": "nope",
		".git/config":      "nope",
	})

	g := newFakeGateway(nil)
	s := newTestScanner(t, g, root)

	stats, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.Registered)
	assert.Zero(t, stats.Updated)
	assert.Zero(t, stats.Unchanged)
	assert.Zero(t, stats.Errors)

	assert.Contains(t, g.files, registrar.NormalizePath(filepath.Join(root, "a.txt")))
	assert.Contains(t, g.files, registrar.NormalizePath(filepath.Join(root, "docs", "b.txt")))
	assert.Len(t, g.contents, 2)

	require.Len(t, g.sweeps, 1)
	assert.Equal(t, registrar.NormalizePath(root), g.sweeps[0].prefix)
}

func TestScanUnchangedOnlyTouches(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "alpha"})

	// First scan learns the tree
	g := newFakeGateway(nil)
	s := newTestScanner(t, g, root)
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	// Second scan starts from the learned path map
	learned := make(map[string]string)
	for path, rec := range g.files {
		learned[path] = rec.ContentHash
	}
	g2 := newFakeGateway(learned)
	s2 := newTestScanner(t, g2, root)

	stats, err := s2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Unchanged)
	assert.Zero(t, stats.Registered)
	assert.Zero(t, stats.Updated)
	assert.Len(t, g2.touched, 1)
	assert.Empty(t, g2.files, "unchanged files must not be re-upserted")
}

func TestScanDistinguishesUpdatedFromRegistered(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"changed.txt": "new content",
		"brand.txt":   "brand new",
	})

	known := map[string]string{
		registrar.NormalizePath(filepath.Join(root, "changed.txt")): "stale-digest",
	}
	g := newFakeGateway(known)
	s := newTestScanner(t, g, root)

	stats, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Updated, "known path with new hash counts as updated")
	assert.Equal(t, 1, stats.Registered, "unknown path counts as registered")
}

func TestScanSweepUsesScanStart(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "alpha"})

	g := newFakeGateway(nil)
	g.perSweep = 3
	s := newTestScanner(t, g, root)

	before := time.Now().UTC()
	stats, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.SoftDeleted)
	require.Len(t, g.sweeps, 1)

	// The sweep cutoff is captured before the path map fetch, so a row
	// touched concurrently with the scan can never be swept.
	cutoff := g.sweeps[0].before
	assert.False(t, cutoff.Before(before.Add(-time.Second)))
	assert.False(t, cutoff.After(g.fetched))
}

func TestScanSkipsSweepForMissingRoot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "alpha"})
	missing := filepath.Join(root, "not-mounted")

	g := newFakeGateway(nil)
	s := newTestScanner(t, g, root, missing)

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, g.sweeps, 1, "a missing root must not be swept")
	assert.Equal(t, registrar.NormalizePath(root), g.sweeps[0].prefix)
}

func TestScanCancelledContextSkipsSweep(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "alpha"})

	g := newFakeGateway(nil)
	s := newTestScanner(t, g, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx)
	require.Error(t, err)
	assert.Empty(t, g.sweeps, "a partial scan must never soft-delete")
}

func TestScanCancelledBeforeWalkCollectsNothing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":      "alpha",
		"docs/b.txt": "beta",
	})

	g := newFakeGateway(nil)
	s := newTestScanner(t, g, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The walk stops at the first entry, so nothing is collected, nothing
	// is registered, and nothing can be swept.
	assert.Zero(t, stats.TotalFiles)
	assert.Empty(t, g.files)
	assert.Empty(t, g.contents)
	assert.Empty(t, g.sweeps)
}

func TestScanEmptyTree(t *testing.T) {
	root := t.TempDir()

	g := newFakeGateway(nil)
	s := newTestScanner(t, g, root)

	stats, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.TotalFiles)
	assert.Zero(t, stats.Registered)
	assert.Empty(t, g.files)
	assert.Empty(t, g.contents)
}

func TestStatsDurationHuman(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30.0s"},
		{90 * time.Second, "1.5m"},
		{2 * time.Hour, "2.0h"},
	}
	for _, tt := range tests {
		s := Stats{Duration: tt.d}
		if got := s.DurationHuman(); got != tt.want {
			t.Errorf("DurationHuman(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
