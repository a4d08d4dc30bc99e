package fs

import (
	"path"
	"strings"

	"mergetree/internal/logging"
)

var (
	pathLogger = logging.GetLogger().WithPrefix("path")
)

// VirtualPath is an absolute path inside the mounted view.
type VirtualPath struct {
	// always starts with /
	path string
}

// NewVirtualPath creates a new VirtualPath instance.
// It cleans the path and ensures it's absolute.
func NewVirtualPath(p string) *VirtualPath {
	cleaned := path.Clean("/" + strings.TrimPrefix(p, "/"))
	pathLogger.Trace("Creating new virtual path: %q -> %q", p, cleaned)
	return &VirtualPath{path: cleaned}
}

// String returns the string representation of the path
func (vp *VirtualPath) String() string {
	return vp.path
}

// Join returns the path of the child name.
func (vp *VirtualPath) Join(name string) *VirtualPath {
	return NewVirtualPath(vp.path + "/" + name)
}
