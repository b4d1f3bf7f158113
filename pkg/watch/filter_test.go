package watch

import (
	"testing"

	"github.com/casmirror/casmirror/pkg/config"
)

func TestFilterMatch(t *testing.T) {
	f := NewFilter([]string{"*.tmp", "*.swp", "~*", "@eaDir/*", "#recycle/*", "Thumbs.db"})

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"temp file by basename", "/mnt/data/report.tmp", true},
		{"swap file in subdir", "/mnt/data/docs/.notes.txt.swp", true},
		{"backup prefix", "/mnt/data/~lock.docx", true},
		{"synology metadata dir", "/mnt/data/photos/@eaDir", true},
		{"synology metadata child", "/mnt/data/photos/@eaDir/photo.jpg", true},
		{"synology thumbnail nested", "/mnt/data/photos/@eaDir/photo.jpg/SYNO_THUMB_M.jpg", true},
		{"recycle dir", "/mnt/data/#recycle", true},
		{"recycle nested file", "/mnt/data/#recycle/sub/old.txt", true},
		{"windows thumbnail db", "/mnt/data/pics/Thumbs.db", true},
		{"hidden file", "/mnt/data/.env", true},
		{"hidden directory component", "/mnt/data/.git/config", true},
		{"regular file", "/mnt/data/docs/report.pdf", false},
		{"tmp as extension-like infix", "/mnt/data/tmpfile.txt", false},
		{"name containing pattern as infix", "/mnt/data/my@eaDirish/file.txt", false},
		{"relative path", "docs/report.pdf", false},
		{"relative current dir prefix", "./docs/report.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

// The shipped defaults must cover whole ignored subtrees: Synology writes
// thumbnails two levels deep (@eaDir/<file>/SYNO_THUMB_*.jpg) and recycle
// bins keep their folder structure.
func TestFilterDefaultPatterns(t *testing.T) {
	f := NewFilter(config.DefaultIgnorePatterns)

	ignored := []string{
		"/mnt/data/@eaDir",
		"/mnt/data/@eaDir/photo.jpg",
		"/mnt/data/@eaDir/photo.jpg/SYNO_THUMB_M.jpg",
		"/mnt/data/#recycle",
		"/mnt/data/#recycle/sub/old.txt",
		"/mnt/data/docs/draft.tmp",
		"/mnt/data/incoming/movie.mkv.partial",
		"/mnt/data/pics/Thumbs.db",
		"/mnt/data/pics/.DS_Store",
	}
	for _, path := range ignored {
		if !f.Match(path) {
			t.Errorf("Match(%q) = false, want true", path)
		}
	}

	kept := []string{
		"/mnt/data/docs/report.pdf",
		"/mnt/data/photos/holiday.jpg",
	}
	for _, path := range kept {
		if f.Match(path) {
			t.Errorf("Match(%q) = true, want false", path)
		}
	}
}

func TestFilterEmptyPatterns(t *testing.T) {
	f := NewFilter(nil)

	if f.Match("/mnt/data/file.txt") {
		t.Error("Expected no match without patterns")
	}
	// The hidden-component rule applies even with no patterns configured
	if !f.Match("/mnt/data/.hidden") {
		t.Error("Expected dot-prefixed files to always be ignored")
	}
}
