package snapshot

import "mergetree/internal/tree"

// XattrReader returns the extended attributes of the entry at path.
// Implementations return an empty set, not an error, when the filesystem
// does not support extended attributes.
type XattrReader interface {
	ReadXattrs(path string) (tree.Xattrs, error)
}

// XattrReaderFunc adapts a function to XattrReader.
type XattrReaderFunc func(path string) (tree.Xattrs, error)

// ReadXattrs calls f(path).
func (f XattrReaderFunc) ReadXattrs(path string) (tree.Xattrs, error) {
	return f(path)
}

// NoXattrs never reports any attribute. It is the default for filesystems
// that are not backed by the host.
var NoXattrs XattrReader = XattrReaderFunc(func(string) (tree.Xattrs, error) {
	return nil, nil
})
