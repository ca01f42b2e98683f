//go:build !windows

package diskmanager

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// IsMountPoint reports whether path is the root of a mounted filesystem.
// A directory on a different device than its parent is a mount point.
func IsMountPoint(path string) (bool, error) {
	var st, parent unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, err
	}
	if err := unix.Stat(filepath.Join(path, ".."), &parent); err != nil {
		return false, err
	}
	// Same device and inode means path is "/".
	return st.Dev != parent.Dev || st.Ino == parent.Ino, nil
}
