package fs

import (
	"context"
	"os"

	"mergetree/internal/logging"
	"mergetree/internal/tree"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir is a directory of the merged tree.
type Dir struct {
	fs   *FS
	path *VirtualPath
	node *tree.Node
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	dirLogger.Trace("Getting attributes for directory: %q", d.path.String())

	e := d.node.Entry
	a.Mode = os.ModeDir | e.Mode.Perm()
	if a.Mode.Perm() == 0 {
		a.Mode |= 0o755
	}
	a.Mtime = e.ModTime
	a.Atime = e.ModTime
	a.Ctime = e.ModTime
	a.Nlink = 2
	a.Uid = d.fs.uid
	a.Gid = d.fs.gid
	return nil
}

// Setattr rejects every change.
func (d *Dir) Setattr(_ context.Context, _ *fuse.SetattrRequest, _ *fuse.SetattrResponse) error {
	return ToFuseError(NewFSError(OpSetattr, d.path.String(), ErrReadOnly))
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	dirLogger.Debug("Looking up %q in directory %q", name, d.path.String())
	childPath := d.path.Join(name)

	child := d.node.Child(name)
	if child == nil {
		dirLogger.Debug("Path not found: %q", childPath.String())
		return nil, ToFuseError(NewFSError(OpLookup, childPath.String(), ErrPathNotFound))
	}
	return d.fs.node(childPath, child), nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory
// contents in tree order.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("Reading directory contents: %q", d.path.String())

	children := d.node.Children()
	entries := make([]fuse.Dirent, 0, len(children)+2)
	entries = append(entries,
		fuse.Dirent{Name: ".", Type: fuse.DT_Dir},
		fuse.Dirent{Name: "..", Type: fuse.DT_Dir},
	)
	for _, c := range children {
		entries = append(entries, fuse.Dirent{Name: c.Name(), Type: direntType(c.Entry)})
	}

	dirLogger.Debug("Directory %q contains %d entries", d.path.String(), len(entries))
	return entries, nil
}

// Getxattr implements the NodeGetxattrer interface.
func (d *Dir) Getxattr(_ context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	return getxattr(d.path, d.node.Entry, req, resp)
}

// Listxattr implements the NodeListxattrer interface.
func (d *Dir) Listxattr(_ context.Context, _ *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	return listxattr(d.path, d.node.Entry, resp)
}

func direntType(e *tree.Entry) fuse.DirentType {
	switch {
	case e.IsDir():
		return fuse.DT_Dir
	case e.Kind == tree.KindRegular:
		return fuse.DT_File
	case e.Kind == tree.KindCharDevice:
		return fuse.DT_Char
	case e.Mode&os.ModeSymlink != 0:
		return fuse.DT_Link
	default:
		return fuse.DT_Unknown
	}
}

func getxattr(p *VirtualPath, e *tree.Entry, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	value, ok := e.Xattrs[req.Name]
	if !ok {
		dirLogger.Trace("Xattr %q not found for %q", req.Name, p.String())
		return ToFuseError(NewFSError(OpGetxattr, p.String(), ErrNoXattr))
	}
	resp.Xattr = append(resp.Xattr, value...)
	return nil
}

func listxattr(p *VirtualPath, e *tree.Entry, resp *fuse.ListxattrResponse) error {
	keys := e.Xattrs.Keys()
	dirLogger.Trace("Listing %d xattrs for %q", len(keys), p.String())
	resp.Append(keys...)
	return nil
}
