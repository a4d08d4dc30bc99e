package fs

import (
	"math"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

func safeInt64ToUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}

// rdev encodes device numbers for fuse.Attr.Rdev, which is 32 bits wide.
func rdev(major, minor uint32) uint32 {
	dev := unix.Mkdev(major, minor)
	if dev > math.MaxUint32 {
		return 0
	}
	return uint32(dev)
}

// envID returns the id in the environment variable name, or def when it is
// unset or not a number.
func envID(name string, def uint32) uint32 {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		vfsLogger.Warn("Ignoring %s=%q: %v", name, s, err)
		return def
	}
	vfsLogger.Debug("Using %s from environment: %d", name, id)
	return uint32(id)
}
