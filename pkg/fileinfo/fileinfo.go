// Package fileinfo extracts the filesystem metadata attached to every file
// record: stat attributes, permission bits, ownership, and extension-based
// MIME inference. Stat never follows symlinks, so a dangling link cannot
// fault the pipeline.
package fileinfo

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StatError wraps a per-file stat failure. Callers treat it as a skip for
// that file, not a fatal pipeline error.
type StatError struct {
	Path string
	Err  error
}

func (e *StatError) Error() string {
	return fmt.Sprintf("failed to stat %s: %v", e.Path, e.Err)
}

func (e *StatError) Unwrap() error {
	return e.Err
}

// Info holds everything the registrar needs to build a file record.
type Info struct {
	// Filename is the basename of the path
	Filename string

	// FolderPath is the path of the containing directory relative to the
	// source base, prefixed with the base's final name component. A file
	// directly under /mnt/share gets FolderPath "share".
	FolderPath string

	// Size in bytes from lstat
	Size int64

	// Mime is the extension-inferred MIME type, empty when unknown
	Mime string

	// CreatedAt and ModifiedAt are filesystem timestamps in UTC.
	// CreatedAt falls back to the modification time on filesystems that
	// do not expose a change time.
	CreatedAt  time.Time
	ModifiedAt time.Time

	// Inode is the filesystem inode number (0 where unavailable)
	Inode uint64

	// IsSymlink reports whether the path itself is a symbolic link
	IsSymlink bool

	// Owner is the resolved owner name, empty when lookup fails
	Owner string

	// Attributes is the unstructured fs_attributes map stored on the record
	Attributes map[string]any

	// AutoMetadata is the auto-extracted metadata map (MIME, extension,
	// original filename, source path, source base)
	AutoMetadata map[string]any
}

// Extract lstats the file and assembles its metadata relative to sourceBase.
func Extract(path, sourceBase string) (*Info, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, &StatError{Path: path, Err: err}
	}

	info := &Info{
		Filename:   filepath.Base(path),
		FolderPath: FolderPath(path, sourceBase),
		Size:       fi.Size(),
		Mime:       MimeByExtension(path),
		ModifiedAt: fi.ModTime().UTC(),
		IsSymlink:  fi.Mode()&os.ModeSymlink != 0,
	}

	mode := fi.Mode().Perm()
	accessRights := map[string]any{
		"owner_read":    mode&0400 != 0,
		"owner_write":   mode&0200 != 0,
		"owner_execute": mode&0100 != 0,
		"group_read":    mode&0040 != 0,
		"group_write":   mode&0020 != 0,
		"group_execute": mode&0010 != 0,
		"other_read":    mode&0004 != 0,
		"other_write":   mode&0002 != 0,
		"other_execute": mode&0001 != 0,
		"mode_octal":    fmt.Sprintf("%03o", mode),
	}

	info.Attributes = map[string]any{
		"size_bytes":    fi.Size(),
		"is_symlink":    info.IsSymlink,
		"access_rights": accessRights,
	}

	// Platform-specific fields: inode, uid/gid, nlink, ctime, owner names
	applySysAttrs(info, fi)

	if info.CreatedAt.IsZero() {
		info.CreatedAt = info.ModifiedAt
	}

	ext := strings.ToLower(filepath.Ext(path))
	info.AutoMetadata = map[string]any{
		"mime_type":         info.Mime,
		"extension":         ext,
		"original_filename": info.Filename,
		"source_path":       path,
		"source_base":       sourceBase,
	}

	return info, nil
}

// FolderPath computes the folder path stored on a file record: the file's
// directory relative to sourceBase, prefixed with sourceBase's final name
// component. When the parent is the base itself, the result is just that
// name. Paths outside the base fall back to the literal parent directory.
func FolderPath(path, sourceBase string) string {
	dir := filepath.Dir(path)
	baseName := filepath.Base(filepath.Clean(sourceBase))

	rel, err := filepath.Rel(sourceBase, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(dir)
	}
	if rel == "." {
		return baseName
	}
	return filepath.ToSlash(filepath.Join(baseName, rel))
}

// MimeByExtension infers a MIME type from the filename extension only.
// No magic-byte sniffing; returns empty string when the extension is
// unknown. Any charset parameter the platform table carries is stripped.
func MimeByExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	mt := mime.TypeByExtension(strings.ToLower(ext))
	if mt == "" {
		return ""
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
