//go:build linux

package fileinfo

import (
	"os"
	"os/user"
	"strconv"
	"syscall"
	"time"
)

// applySysAttrs fills the fields only the unix stat structure exposes:
// inode, link count, ownership, and the inode change time.
func applySysAttrs(info *Info, fi os.FileInfo) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}

	info.Inode = st.Ino
	info.CreatedAt = time.Unix(st.Ctim.Sec, st.Ctim.Nsec).UTC()

	info.Attributes["nlinks"] = uint64(st.Nlink)
	info.Attributes["uid"] = st.Uid
	info.Attributes["gid"] = st.Gid
	info.Attributes["device"] = uint64(st.Dev)

	// Best effort: missing passwd/group entries are common on NAS boxes
	if u, err := user.LookupId(strconv.FormatUint(uint64(st.Uid), 10)); err == nil {
		info.Owner = u.Username
		info.Attributes["owner_name"] = u.Username
	}
	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(st.Gid), 10)); err == nil {
		info.Attributes["group_name"] = g.Name
	}
}
