package snapshot

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"mergetree/internal/logging"
	"mergetree/internal/tree"
)

// Option configures a Builder.
type Option func(*Builder)

// WithXattrReader overrides how extended attributes are read.
func WithXattrReader(r XattrReader) Option {
	return func(b *Builder) {
		b.xattrs = r
	}
}

// WithLogger replaces the default "snapshot" component logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// Builder turns a directory of an afero.Fs into a tree.Tree.
type Builder struct {
	fs     afero.Fs
	xattrs XattrReader
	logger *logging.Logger
}

// NewBuilder creates a builder reading from fsys. Host extended attributes
// are read only when fsys is an *afero.OsFs.
func NewBuilder(fsys afero.Fs, opts ...Option) *Builder {
	b := &Builder{
		fs:     fsys,
		xattrs: NoXattrs,
		logger: logging.GetLogger().WithPrefix("snapshot"),
	}
	if _, ok := fsys.(*afero.OsFs); ok {
		b.xattrs = HostXattrs
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build snapshots the directory root. Every entry gets role; unless role is
// tree.RoleLower the finished tree is classified under spec. Any metadata
// failure aborts the build. root itself may be a symlink to a directory;
// entries below it are not followed.
func (b *Builder) Build(root string, role tree.Role, spec tree.WhiteoutSpec) (*tree.Tree, error) {
	fi, err := b.fs.Stat(root)
	if err != nil {
		return nil, newError(OpStat, root, err)
	}
	if !fi.IsDir() {
		return nil, newError(OpStat, root, ErrNotDirectory)
	}

	rootEntry, err := b.entry(root, fi, role)
	if err != nil {
		return nil, err
	}
	t := tree.NewWithRoot(rootEntry)
	if err := b.walk(root, t.Root(), role); err != nil {
		return nil, err
	}

	b.finish(t, root, role, spec)
	return t, nil
}

// Open snapshots p, which is either a directory or a tar stream (optionally
// gzip compressed).
func (b *Builder) Open(p string, role tree.Role, spec tree.WhiteoutSpec) (*tree.Tree, error) {
	fi, err := b.fs.Stat(p)
	if err != nil {
		return nil, newError(OpStat, p, err)
	}
	if fi.IsDir() {
		return b.Build(p, role, spec)
	}

	f, err := b.fs.Open(p)
	if err != nil {
		return nil, newError(OpStat, p, err)
	}
	defer f.Close()

	t, err := readTar(f, p, role)
	if err != nil {
		return nil, err
	}
	b.finish(t, p, role, spec)
	return t, nil
}

func (b *Builder) finish(t *tree.Tree, src string, role tree.Role, spec tree.WhiteoutSpec) {
	if role != tree.RoleLower {
		t.Classify(spec)
		logMarkers(b.logger, t)
	}
	b.logger.Debug("built %s snapshot of %s: %d nodes", role, src, t.Len())
}

func (b *Builder) walk(dir string, parent *tree.Node, role tree.Role) error {
	infos, err := afero.ReadDir(b.fs, dir)
	if err != nil {
		return newError(OpReadDir, dir, err)
	}
	for _, fi := range infos {
		p := filepath.Join(dir, fi.Name())
		e, err := b.entry(p, fi, role)
		if err != nil {
			return err
		}
		n := tree.NewNode(e)
		parent.AttachChild(n)
		b.logger.Trace("%s %s", e.Kind, p)
		if e.IsDir() {
			if err := b.walk(p, n, role); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) entry(p string, fi os.FileInfo, role tree.Role) (*tree.Entry, error) {
	e := tree.NewEntry(fi.Name(), fi.Mode())
	e.Size = fi.Size()
	e.ModTime = fi.ModTime()
	e.Role = role
	if e.Kind == tree.KindCharDevice {
		e.DevMajor, e.DevMinor = deviceNumbers(fi)
	}
	if e.Kind == tree.KindRegular {
		e.Source = p
	}

	x, err := b.xattrs.ReadXattrs(p)
	if err != nil {
		return nil, newError(OpXattr, p, err)
	}
	e.Xattrs = x
	return e, nil
}

// logMarkers reports every classified marker of t.
func logMarkers(l *logging.Logger, t *tree.Tree) {
	_ = t.Walk(func(p string, depth int, n *tree.Node) error {
		if typ, ok := n.Entry.WhiteoutType(); ok {
			l.Debug("%s marker at %s", typ, p)
		}
		return nil
	})
}
