package fs

import (
	"bazil.org/fuse/fs"
)

// Node represents a filesystem node (file or directory)
type Node interface {
	fs.Node
	fs.NodeSetattrer
	fs.NodeGetxattrer
	fs.NodeListxattrer
}

// Directory represents a directory of the merged tree
type Directory interface {
	Node
	fs.NodeStringLookuper
	fs.HandleReadDirAller
}

// FileInterface represents a non-directory entry of the merged tree
type FileInterface interface {
	Node
	fs.NodeOpener
}

// FileHandleInterface represents an open file handle
type FileHandleInterface interface {
	fs.Handle
	fs.HandleReader
	fs.HandleReleaser
}

var (
	_ fs.FS               = (*FS)(nil)
	_ Directory           = (*Dir)(nil)
	_ FileInterface       = (*File)(nil)
	_ FileHandleInterface = (*FileHandle)(nil)
)
