package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"mergetree/internal/logging"
	"mergetree/internal/tree"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File is any non-directory entry of the merged tree. Regular files built
// from a directory read through to the layer they came from.
type File struct {
	fs   *FS
	path *VirtualPath
	node *tree.Node
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	e := f.node.Entry
	fileLogger.Trace("Getting attributes for file: %q (source: %q)", f.path.String(), e.Source)

	a.Mode = e.Mode
	a.Size = safeInt64ToUint64(e.Size)
	a.Mtime = e.ModTime
	a.Atime = e.ModTime // We don't track access time
	a.Ctime = e.ModTime // We don't track change time
	a.Nlink = 1
	a.Uid = f.fs.uid
	a.Gid = f.fs.gid
	a.BlockSize = 4096
	a.Blocks = safeInt64ToUint64((e.Size + 511) / 512)
	if e.Kind == tree.KindCharDevice {
		a.Rdev = rdev(e.DevMajor, e.DevMinor)
	}

	fileLogger.Trace("File attributes: mode=%v, size=%d, mtime=%v", a.Mode, a.Size, a.Mtime)
	return nil
}

// Setattr rejects every change.
func (f *File) Setattr(_ context.Context, _ *fuse.SetattrRequest, _ *fuse.SetattrResponse) error {
	return ToFuseError(NewFSError(OpSetattr, f.path.String(), ErrReadOnly))
}

// Open implements the NodeOpener interface. Entries without a source, such as
// those read from a tar stream, open as empty files.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	e := f.node.Entry
	flags := int(req.Flags)
	fileLogger.Debug("Opening file %q with flags %v", f.path.String(), flags)

	// Enforce read-only access
	if flags&os.O_WRONLY != 0 || flags&os.O_RDWR != 0 {
		fileLogger.Warn("Attempted write access to read-only file: %q", f.path.String())
		return nil, syscall.EPERM
	}

	if e.Source == "" {
		fileLogger.Debug("File %q has no layer content", f.path.String())
		return &FileHandle{path: f.path.String()}, nil
	}

	file, err := os.Open(e.Source)
	if err != nil {
		fileLogger.Error("Failed to open layer file %q: %v", e.Source, err)
		return nil, ToFuseError(NewFSError(OpOpen, f.path.String(), fmt.Errorf("%w: %v", ErrNoSource, err)))
	}

	resp.Flags |= fuse.OpenKeepCache

	fileLogger.Debug("Successfully opened file %q", f.path.String())
	return &FileHandle{
		file: file,
		path: f.path.String(),
	}, nil
}

// Getxattr implements the NodeGetxattrer interface.
func (f *File) Getxattr(_ context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	return getxattr(f.path, f.node.Entry, req, resp)
}

// Listxattr implements the NodeListxattrer interface.
func (f *File) Listxattr(_ context.Context, _ *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	return listxattr(f.path, f.node.Entry, resp)
}

// FileHandle is an open file. A nil file reads as empty.
type FileHandle struct {
	file *os.File
	path string // For logging purposes
	mu   sync.Mutex
}

// Read implements the HandleReader interface, reading data from the file.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	if fh.file == nil {
		resp.Data = resp.Data[:0]
		return nil
	}

	fileLogger.Trace("Reading %d bytes from file %q at offset %d", req.Size, fh.path, req.Offset)

	buf := make([]byte, req.Size)
	n, err := fh.file.ReadAt(buf, req.Offset)
	if err != nil && err != io.EOF {
		fileLogger.Error("Failed to read from file: %v", err)
		return ToFuseError(NewFSError(OpRead, fh.path, err))
	}

	resp.Data = buf[:n]
	fileLogger.Trace("Successfully read %d bytes", n)
	return nil
}

// Release implements the HandleReleaser interface, closing the file handle.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	fileLogger.Debug("Closing file %q", fh.path)
	if fh.file == nil {
		return nil
	}
	err := fh.file.Close()
	fh.file = nil
	return err
}
