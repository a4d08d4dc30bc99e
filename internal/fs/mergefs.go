package fs

import (
	"fmt"
	"os"
	"sync"
	"time"

	"mergetree/internal/logging"
	"mergetree/internal/tree"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")
)

// FS serves one merged tree read-only. The tree must not change while the
// filesystem is mounted.
type FS struct {
	tree  *tree.Tree
	conn  *fuse.Conn
	uid   uint32 // Owner reported for every node
	gid   uint32 // Group reported for every node
	mu    sync.Mutex
	nodes map[*tree.Node]fusefs.Node
}

// New creates a filesystem over t. Ownership defaults to the current process
// and can be overridden with the PUID and PGID environment variables.
func New(t *tree.Tree) *FS {
	vfsLogger.Debug("Creating filesystem over %d nodes", t.Len())
	return &FS{
		tree:  t,
		uid:   envID("PUID", safeIntToUint32(os.Getuid())),
		gid:   envID("PGID", safeIntToUint32(os.Getgid())),
		nodes: make(map[*tree.Node]fusefs.Node),
	}
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (vfs *FS) Root() (fusefs.Node, error) {
	vfsLogger.Trace("Getting root directory node")
	return vfs.node(NewVirtualPath("/"), vfs.tree.Root()), nil
}

// node returns the FUSE node for n, creating it on first use so the kernel
// sees a stable node per tree entry.
func (vfs *FS) node(p *VirtualPath, n *tree.Node) fusefs.Node {
	vfs.mu.Lock()
	defer vfs.mu.Unlock()

	if fn, ok := vfs.nodes[n]; ok {
		return fn
	}
	var fn fusefs.Node
	if n.Entry.IsDir() {
		fn = &Dir{fs: vfs, path: p, node: n}
	} else {
		fn = &File{fs: vfs, path: p, node: n}
	}
	vfs.nodes[n] = fn
	return fn
}

func waitForMount(mountpoint string) error {
	for i := 0; i < 30; i++ {
		info, err := os.Stat(mountpoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}

// Mount mounts the view read-only at mountPoint and serves it in the
// background. extra options are appended to the defaults.
func (vfs *FS) Mount(mountPoint string, extra ...fuse.MountOption) error {
	vfsLogger.Info("Mounting merged tree")
	vfsLogger.Debug("Mount point: %s", mountPoint)
	vfsLogger.Debug("UID: %d, GID: %d", vfs.uid, vfs.gid)

	mountOpts := append([]fuse.MountOption{
		fuse.FSName("mergetree"),
		fuse.Subtype("mergetree"),
		fuse.ReadOnly(),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
	}, extra...)

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	vfs.conn = c

	go func() {
		if err := fusefs.Serve(c, vfs); err != nil {
			vfsLogger.Error("FUSE server error: %v", err)
		}
	}()

	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		vfsLogger.Error("Mount point not ready: %v", err)
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}

	vfsLogger.Info("Filesystem mounted successfully")
	return nil
}

// Unmount cleanly unmounts the filesystem.
func (vfs *FS) Unmount(mountPoint string) error {
	vfsLogger.Info("Unmounting filesystem from: %s", mountPoint)
	if vfs.conn == nil {
		return nil
	}
	if err := fuse.Unmount(mountPoint); err != nil {
		vfsLogger.Error("Unmount failed: %v", err)
		return err
	}
	vfsLogger.Info("Unmount completed successfully")
	return vfs.conn.Close()
}
