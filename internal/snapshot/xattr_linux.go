//go:build linux

package snapshot

import (
	"bytes"
	"errors"

	"golang.org/x/sys/unix"

	"mergetree/internal/tree"
)

// HostXattrs reads attributes with llistxattr(2)/lgetxattr(2), so symlinks
// are not followed.
var HostXattrs XattrReader = XattrReaderFunc(readHostXattrs)

func readHostXattrs(path string) (tree.Xattrs, error) {
	names, err := listXattrs(path)
	if err != nil {
		if errors.Is(err, unix.ENOTSUP) {
			return nil, nil
		}
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	out := make(tree.Xattrs, len(names))
	for _, name := range names {
		v, err := getXattr(path, name)
		if err != nil {
			// Listed but unreadable: removed in between, or a namespace we may not read.
			if errors.Is(err, unix.ENODATA) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
				continue
			}
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func listXattrs(path string) ([]string, error) {
	for {
		size, err := unix.Llistxattr(path, nil)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return nil, nil
		}
		buf := make([]byte, size)
		n, err := unix.Llistxattr(path, buf)
		if errors.Is(err, unix.ERANGE) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var names []string
		for _, name := range bytes.Split(buf[:n], []byte{0}) {
			if len(name) > 0 {
				names = append(names, string(name))
			}
		}
		return names, nil
	}
}

func getXattr(path, name string) ([]byte, error) {
	for {
		size, err := unix.Lgetxattr(path, name, nil)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return []byte{}, nil
		}
		buf := make([]byte, size)
		n, err := unix.Lgetxattr(path, name, buf)
		if errors.Is(err, unix.ERANGE) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
}
