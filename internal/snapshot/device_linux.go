//go:build linux

package snapshot

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// deviceNumbers returns the major and minor numbers of a device file. Infos
// that do not come from the host (afero.MemMapFs) report 0/0.
func deviceNumbers(fi os.FileInfo) (major, minor uint32) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	rdev := uint64(st.Rdev) //nolint:unconvert // Rdev is uint32 on some architectures
	return unix.Major(rdev), unix.Minor(rdev)
}
