package tree

import (
	"errors"
	"io/fs"
	"path"
	"strings"
)

// RootName is the name of every tree's root node.
const RootName = "/"

// SkipDir, returned from a WalkFunc on a node, skips that node's children.
var SkipDir = errors.New("skip this subtree")

// Tree is one snapshot rooted at "/".
type Tree struct {
	root *Node
	role Role
}

// New returns a tree holding only a root directory. Every entry later created
// implicitly by Insert carries role.
func New(role Role) *Tree {
	root := NewEntry(RootName, fs.ModeDir|0o755)
	root.Role = role
	return &Tree{root: NewNode(root), role: role}
}

// NewWithRoot returns a tree around an existing root entry, which is renamed to "/".
func NewWithRoot(root *Entry) *Tree {
	root.Name = RootName
	return &Tree{root: NewNode(root), role: root.Role}
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Role returns the role entries of this snapshot were built with.
func (t *Tree) Role() Role {
	return t.role
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	return t.root.Count()
}

// WalkFunc is called for every node in pre-order. p is the absolute path of
// the node and depth its distance from the root.
type WalkFunc func(p string, depth int, n *Node) error

// Walk visits the tree in pre-order, children in insertion order.
func (t *Tree) Walk(fn WalkFunc) error {
	err := walk(RootName, 0, t.root, fn)
	if errors.Is(err, SkipDir) {
		return nil
	}
	return err
}

func walk(p string, depth int, n *Node, fn WalkFunc) error {
	if err := fn(p, depth, n); err != nil {
		if errors.Is(err, SkipDir) {
			return nil
		}
		return err
	}
	for _, c := range n.children {
		if err := walk(path.Join(p, c.Entry.Name), depth+1, c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Paths lists the absolute path of every non-root node in pre-order.
func (t *Tree) Paths() []string {
	var out []string
	_ = t.Walk(func(p string, depth int, _ *Node) error {
		if depth > 0 {
			out = append(out, p)
		}
		return nil
	})
	return out
}

// SplitPath cleans p and returns its segments, nil for the root.
func SplitPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Lookup resolves an absolute or root-relative path, first match per segment.
func (t *Tree) Lookup(p string) *Node {
	n := t.root
	for _, seg := range SplitPath(p) {
		if n = n.Child(seg); n == nil {
			return nil
		}
	}
	return n
}

// Insert places e at p, creating missing parents as directories. An existing
// node at p is replaced by a fresh node; its children are kept only when both
// the old and the new entry are directories. An entry without a role takes
// the tree's role.
func (t *Tree) Insert(p string, e *Entry) *Node {
	if e.Role == RoleNone {
		e.Role = t.role
	}
	segs := SplitPath(p)
	if len(segs) == 0 {
		e.Name = RootName
		t.root.Entry = e
		return t.root
	}
	parent := t.root
	for _, seg := range segs[:len(segs)-1] {
		next := parent.Child(seg)
		if next == nil {
			dir := NewEntry(seg, fs.ModeDir|0o755)
			dir.Role = t.role
			next = NewNode(dir)
			parent.AttachChild(next)
		}
		parent = next
	}

	e.Name = segs[len(segs)-1]
	if old := parent.Child(e.Name); old != nil {
		if old.Entry.IsDir() && e.IsDir() {
			old.Entry = e
			return old
		}
		parent.Detach(old)
	}
	n := NewNode(e)
	parent.AttachChild(n)
	return n
}

// Classify assigns the role of every non-root entry under spec. It is a no-op
// for lower snapshots.
func (t *Tree) Classify(spec WhiteoutSpec) {
	if t.role == RoleLower {
		return
	}
	_ = t.Walk(func(_ string, depth int, n *Node) error {
		if depth > 0 {
			n.Entry.Classify(spec)
		}
		return nil
	})
}
