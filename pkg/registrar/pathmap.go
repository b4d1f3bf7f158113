package registrar

import "sync"

// PathMap is a concurrency-safe snapshot of full path to content hash,
// shared by all registrar workers of a scan. It is a cache for the cheap
// unchanged check only; the database remains the source of truth.
type PathMap struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewPathMap wraps an initial map, typically the result of FetchPathMap.
// The map is owned by the PathMap afterwards.
func NewPathMap(initial map[string]string) *PathMap {
	if initial == nil {
		initial = make(map[string]string)
	}
	return &PathMap{m: initial}
}

// Get returns the known hash for a path.
func (p *PathMap) Get(path string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.m[path]
	return h, ok
}

// Set records the hash for a path after a successful registration.
func (p *PathMap) Set(path, hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[path] = hash
}

// Len returns the number of known paths.
func (p *PathMap) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}
