package watch

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter decides which paths the watcher skips. Patterns use glob syntax and
// are matched against the basename and, prefixed with "**/", against the full
// path, so "*.tmp" catches a temp file anywhere in the tree. A directory
// pattern like "@eaDir/*" ignores the directory itself and its whole subtree,
// however deep, so the watcher never descends into it.
type Filter struct {
	patterns []string
}

// NewFilter creates a filter from glob patterns. Invalid patterns are kept
// but never match.
func NewFilter(patterns []string) *Filter {
	return &Filter{patterns: patterns}
}

// Match reports whether path should be ignored. Any path with a hidden
// (dot-prefixed) component is ignored regardless of patterns.
func (f *Filter) Match(path string) bool {
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)

	for _, pattern := range f.patterns {
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match("**/"+pattern, slashed); err == nil && ok {
			return true
		}
		// Glob * stops at path separators, so "@eaDir/*" alone would only
		// cover direct children. Match the directory itself and any depth
		// beneath it as well.
		if dir, isDir := strings.CutSuffix(pattern, "/*"); isDir {
			if ok, err := doublestar.Match("**/"+dir, slashed); err == nil && ok {
				return true
			}
			if ok, err := doublestar.Match("**/"+dir+"/**", slashed); err == nil && ok {
				return true
			}
		}
	}

	for _, part := range strings.Split(slashed, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
