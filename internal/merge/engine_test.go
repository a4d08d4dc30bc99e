package merge

import (
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"mergetree/internal/tree"
)

type item struct {
	path  string
	entry *tree.Entry
}

func file(p string) item {
	return item{p, tree.NewEntry("", 0o644)}
}

func dir(p string) item {
	return item{p, tree.NewEntry("", fs.ModeDir|0o755)}
}

func charDevice(p string, major, minor uint32) item {
	e := tree.NewEntry("", fs.ModeDevice|fs.ModeCharDevice|0o600)
	e.DevMajor = major
	e.DevMinor = minor
	return item{p, e}
}

func overlayOpaque(p string) item {
	e := tree.NewEntry("", fs.ModeDir|0o755)
	e.Xattrs = tree.Xattrs{tree.OverlayFsOpaqueXattr: []byte(tree.OverlayFsOpaqueValue)}
	return item{p, e}
}

func lowerTree(items ...item) *tree.Tree {
	t := tree.New(tree.RoleLower)
	for _, it := range items {
		t.Insert(it.path, it.entry)
	}
	return t
}

func upperTree(spec tree.WhiteoutSpec, items ...item) *tree.Tree {
	t := tree.New(tree.RoleNone)
	for _, it := range items {
		t.Insert(it.path, it.entry)
	}
	t.Classify(spec)
	return t
}

// recorder keeps every formatted log line.
type recorder struct {
	lines []string
}

func (r *recorder) Debug(format string, args ...interface{}) {
	r.lines = append(r.lines, "DEBUG "+fmt.Sprintf(format, args...))
}

func (r *recorder) Trace(format string, args ...interface{}) {
	r.lines = append(r.lines, "TRACE "+fmt.Sprintf(format, args...))
}

func (r *recorder) String() string {
	return strings.Join(r.lines, "\n")
}

func apply(base, upper *tree.Tree, spec tree.WhiteoutSpec, opts ...Option) *recorder {
	rec := &recorder{}
	NewEngine(spec, append([]Option{WithLogger(rec)}, opts...)...).Apply(base, upper)
	return rec
}

func sampleBase() *tree.Tree {
	return lowerTree(file("/a/file1"), file("/a/file2"), file("/b/file3"))
}

func TestAddAndReplace(t *testing.T) {
	base := sampleBase()
	upper := upperTree(tree.WhiteoutOCI, file("/a/file1"), file("/c/file4"))

	apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{
		"/a", "/a/file2", "/a/file1",
		"/b", "/b/file3",
		"/c", "/c/file4",
	})
	assert.Equal(t, base.Lookup("/a/file1").Entry.Role, tree.RoleUpperAddition)
	assert.Equal(t, base.Lookup("/a/file2").Entry.Role, tree.RoleLower)
	assert.Equal(t, base.Lookup("/a").Entry.Role, tree.RoleLower)
	assert.Equal(t, base.Lookup("/c").Entry.Role, tree.RoleUpperAddition)
	assert.Equal(t, base.Lookup("/c/file4").Entry.Role, tree.RoleUpperAddition)
}

func TestReplacementTakesUpperMetadata(t *testing.T) {
	base := sampleBase()
	replacement := file("/a/file1")
	replacement.entry.Size = 42
	replacement.entry.Source = "/upper/a/file1"
	upper := upperTree(tree.WhiteoutOCI, replacement)

	apply(base, upper, tree.WhiteoutOCI)

	got := base.Lookup("/a/file1").Entry
	assert.Equal(t, got.Size, int64(42))
	assert.Equal(t, got.Source, "/upper/a/file1")
	assert.Assert(t, got != replacement.entry, "merged tree must own a copy")
}

func TestOCIRemoval(t *testing.T) {
	base := sampleBase()
	upper := upperTree(tree.WhiteoutOCI, file("/a/.wh.file2"))

	rec := apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/file1", "/b", "/b/file3"})
	assert.Check(t, is.Contains(rec.String(), "oci-removal: removed /a/file2"))
}

func TestOCIRemovalOfDirectorySubtree(t *testing.T) {
	base := lowerTree(file("/a/sub/deep/x"), file("/a/keep"))
	upper := upperTree(tree.WhiteoutOCI, file("/a/.wh.sub"))

	apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/keep"})
}

func TestRemovalOfMissingPathIsNoop(t *testing.T) {
	base := sampleBase()
	upper := upperTree(tree.WhiteoutOCI, file("/a/.wh.nothere"), file("/zzz/.wh.file1"))
	before := base.Paths()

	apply(base, upper, tree.WhiteoutOCI)

	// /zzz is a plain directory of the upper layer and is added; nothing is removed.
	assert.DeepEqual(t, base.Paths(), append(before, "/zzz"))
}

func TestOCIOpaque(t *testing.T) {
	base := lowerTree(file("/a/file1"), file("/a/sub/deep/x"), file("/b/file3"))
	upper := upperTree(tree.WhiteoutOCI, file("/a/.wh..wh..opq"), file("/a/fresh"))

	apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/fresh", "/b", "/b/file3"})
	assert.Equal(t, base.Lookup("/a").Entry.Role, tree.RoleLower)
}

func TestOCIOpaqueListedAfterAdditions(t *testing.T) {
	base := lowerTree(file("/a/old"))
	upper := upperTree(tree.WhiteoutOCI, file("/a/fresh"), file("/a/.wh..wh..opq"))
	assert.Equal(t, upper.Lookup("/a").Children()[0].Name(), "fresh")

	rec := apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/fresh"})
	assert.Check(t, is.Contains(rec.String(), "applying it first"))
}

func TestOCIOpaqueAtRoot(t *testing.T) {
	base := sampleBase()
	upper := upperTree(tree.WhiteoutOCI, file("/.wh..wh..opq"), file("/only"))

	apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{"/only"})
}

func TestOverlayFsRemoval(t *testing.T) {
	base := sampleBase()
	upper := upperTree(tree.WhiteoutOverlayFs, charDevice("/a/file1", 0, 0))

	apply(base, upper, tree.WhiteoutOverlayFs)

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/file2", "/b", "/b/file3"})
}

func TestOverlayFsRealDeviceReplaces(t *testing.T) {
	base := sampleBase()
	upper := upperTree(tree.WhiteoutOverlayFs, charDevice("/a/file1", 1, 3))

	apply(base, upper, tree.WhiteoutOverlayFs)

	got := base.Lookup("/a/file1")
	assert.Assert(t, got != nil)
	assert.Equal(t, got.Entry.Kind, tree.KindCharDevice)
	assert.Equal(t, got.Entry.Role, tree.RoleUpperAddition)
}

func TestOverlayFsOpaque(t *testing.T) {
	base := lowerTree(file("/a/file1"), file("/a/sub/x"), file("/b/file3"))
	upper := upperTree(tree.WhiteoutOverlayFs, overlayOpaque("/a"), file("/a/fresh"))

	apply(base, upper, tree.WhiteoutOverlayFs)

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/fresh", "/b", "/b/file3"})
	assert.Equal(t, base.Lookup("/a").Entry.Role, tree.RoleLower)
}

func TestOverlayFsOpaqueNewDirectory(t *testing.T) {
	base := sampleBase()
	upper := upperTree(tree.WhiteoutOverlayFs, overlayOpaque("/c"), file("/c/x"))

	apply(base, upper, tree.WhiteoutOverlayFs)

	assert.Equal(t, base.Lookup("/c").Children()[0].Name(), "x")
	assert.Equal(t, base.Lookup("/c").Entry.Role, tree.RoleUpperAddition)
}

func TestOverlayFsOpaqueOverFile(t *testing.T) {
	base := lowerTree(file("/a"))
	upper := upperTree(tree.WhiteoutOverlayFs, overlayOpaque("/a"), file("/a/x"))

	apply(base, upper, tree.WhiteoutOverlayFs)

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/x"})
	assert.Assert(t, base.Lookup("/a").Entry.IsDir())
}

func TestDirectoryMergesIntoExistingDirectory(t *testing.T) {
	base := lowerTree(file("/usr/lib/libc.so"), file("/usr/bin/sh"))
	upper := upperTree(tree.WhiteoutOCI, file("/usr/lib/libapp.so"))

	apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{
		"/usr", "/usr/lib", "/usr/lib/libc.so", "/usr/lib/libapp.so", "/usr/bin", "/usr/bin/sh",
	})
	assert.Equal(t, base.Lookup("/usr/lib").Entry.Role, tree.RoleLower)
}

func TestDirectoryReplacesFile(t *testing.T) {
	base := lowerTree(file("/a"))
	upper := upperTree(tree.WhiteoutOCI, file("/a/x"))

	apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/x"})
	assert.Assert(t, base.Lookup("/a").Entry.IsDir())
}

func TestFileReplacesDirectory(t *testing.T) {
	base := lowerTree(file("/a/deep/x"))
	upper := upperTree(tree.WhiteoutOCI, file("/a"))

	apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{"/a"})
	assert.Equal(t, base.Lookup("/a").Entry.Kind, tree.KindRegular)
}

func TestMarkersNeverAppearInResult(t *testing.T) {
	base := sampleBase()
	upper := upperTree(tree.WhiteoutOCI,
		file("/a/.wh.file1"), file("/b/.wh..wh..opq"), file("/c/.wh.ghost"))

	apply(base, upper, tree.WhiteoutOCI)

	for _, p := range base.Paths() {
		assert.Check(t, !strings.Contains(p, tree.OCIWhiteoutPrefix), p)
	}
}

func TestMarkersOfOtherConventionArePlainContent(t *testing.T) {
	base := sampleBase()
	upper := upperTree(tree.WhiteoutOCI, file("/a/.wh.file2"))

	apply(base, upper, tree.WhiteoutOverlayFs)

	assert.Assert(t, base.Lookup("/a/file2") != nil)
	assert.Assert(t, base.Lookup("/a/.wh.file2") != nil)
}

func TestAnchorMatchesFirstDirectoryByName(t *testing.T) {
	base := lowerTree(file("/a/lib/old"), file("/b/lib/keep"))
	upper := upperTree(tree.WhiteoutOCI, file("/b/lib/new"))

	apply(base, upper, tree.WhiteoutOCI)

	// (depth, parent name) matching lands in the first "lib" at depth 2.
	assert.Assert(t, base.Lookup("/a/lib/new") != nil)
	assert.Assert(t, base.Lookup("/b/lib/new") == nil)
}

func TestAnchorSkipsFilesWithParentName(t *testing.T) {
	base := lowerTree(file("/x/a"), file("/y/a/old"))
	upper := upperTree(tree.WhiteoutOCI, file("/y/a/new"))

	apply(base, upper, tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), []string{"/x", "/x/a", "/y", "/y/a", "/y/a/old", "/y/a/new"})
	assert.Assert(t, !base.Lookup("/x/a").HasChildren())
}

func TestStrictPathsFileIsNotAnAnchor(t *testing.T) {
	base := lowerTree(file("/a/lib"))
	upper := tree.New(tree.RoleNone)
	lib := upper.Insert("/a/lib", tree.NewEntry("", 0o644))
	lib.AttachChild(tree.NewNode(tree.NewEntry("stray", 0o644)))
	upper.Classify(tree.WhiteoutOCI)

	apply(base, upper, tree.WhiteoutOCI, WithStrictPaths())

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/lib"})
	assert.Assert(t, !base.Lookup("/a/lib").HasChildren())
}

func TestStrictPathsAnchorByFullPath(t *testing.T) {
	base := lowerTree(file("/a/lib/old"), file("/b/lib/keep"))
	upper := upperTree(tree.WhiteoutOCI, file("/b/lib/new"), file("/b/lib/.wh.keep"))

	apply(base, upper, tree.WhiteoutOCI, WithStrictPaths())

	assert.DeepEqual(t, base.Paths(), []string{"/a", "/a/lib", "/a/lib/old", "/b", "/b/lib", "/b/lib/new"})
}

func TestDuplicateSiblingsFirstMatch(t *testing.T) {
	base := tree.New(tree.RoleLower)
	a := base.Insert("/a", tree.NewEntry("", fs.ModeDir|0o755))
	first := tree.NewNode(tree.NewEntry("dup", 0o644))
	second := tree.NewNode(tree.NewEntry("dup", 0o644))
	a.AttachChild(first)
	a.AttachChild(second)

	upper := upperTree(tree.WhiteoutOCI, file("/a/.wh.dup"))
	apply(base, upper, tree.WhiteoutOCI)

	assert.Equal(t, len(a.Children()), 1)
	assert.Equal(t, a.Children()[0], second)
}

func TestEmptyUpperIsNoop(t *testing.T) {
	base := sampleBase()
	before := base.Paths()

	apply(base, tree.New(tree.RoleNone), tree.WhiteoutOCI)

	assert.DeepEqual(t, base.Paths(), before)
}

func TestApplyLayerDefaultEngine(t *testing.T) {
	base := sampleBase()
	ApplyLayer(base, upperTree(tree.WhiteoutOCI, file("/a/.wh.file1")), tree.WhiteoutOCI)

	assert.Assert(t, base.Lookup("/a/file1") == nil)
}
