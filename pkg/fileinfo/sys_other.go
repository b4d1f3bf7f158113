//go:build !linux

package fileinfo

import "os"

// applySysAttrs is a no-op on platforms without the unix stat structure;
// CreatedAt falls back to the modification time and inode stays zero.
func applySysAttrs(info *Info, fi os.FileInfo) {}
