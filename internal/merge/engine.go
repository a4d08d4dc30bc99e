// Package merge overlays upper snapshots onto a base snapshot.
//
// The engine walks the upper tree depth by depth. For every upper node it
// looks up an anchor in the base tree, the node one level up whose name is
// the upper node's parent name, and then applies exactly one of removal,
// opaque clear, replacement or addition under that anchor. Nothing in a
// merge can fail: missing anchors and missing removal targets are no-ops.
package merge

import (
	"path"

	"mergetree/internal/logging"
	"mergetree/internal/tree"
)

// Logger receives merge events. *logging.Logger satisfies it.
type Logger interface {
	Debug(format string, args ...interface{})
	Trace(format string, args ...interface{})
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the default "merge" component logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithStrictPaths anchors upper nodes by their full parent path instead of by
// (depth, parent name). Without it the first base directory in pre-order with
// the right depth and name is used, which picks the wrong directory when two
// directories at the same depth share a name.
func WithStrictPaths() Option {
	return func(e *Engine) {
		e.strict = true
	}
}

// Engine applies upper trees under one whiteout convention.
type Engine struct {
	spec   tree.WhiteoutSpec
	logger Logger
	strict bool
}

// NewEngine creates an engine for spec.
func NewEngine(spec tree.WhiteoutSpec, opts ...Option) *Engine {
	e := &Engine{
		spec:   spec,
		logger: logging.GetLogger().WithPrefix("merge"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Spec returns the engine's whiteout convention.
func (e *Engine) Spec() tree.WhiteoutSpec {
	return e.spec
}

// ApplyLayer overlays upper onto base in place using a default engine.
func ApplyLayer(base, upper *tree.Tree, spec tree.WhiteoutSpec) {
	NewEngine(spec).Apply(base, upper)
}

// stats counts what one Apply did.
type stats struct {
	added, replaced, removed, cleared, unanchored int
}

// Apply overlays upper onto base in place. The upper root is never a target.
func (e *Engine) Apply(base, upper *tree.Tree) {
	var st stats
	e.applyChildren(base, upper.Root(), nil, 1, &st)
	e.logger.Debug("layer applied: %d added, %d replaced, %d removed, %d cleared, %d without anchor",
		st.added, st.replaced, st.removed, st.cleared, st.unanchored)
}

// applyChildren processes the children of upper node parent, which sit at
// level. parentPath holds the segment names from the root to parent.
func (e *Engine) applyChildren(base *tree.Tree, parent *tree.Node, parentPath []string, level int, st *stats) {
	for _, u := range e.ordered(parent, parentPath) {
		e.applyNode(base, u, parent.Name(), parentPath, level, st)
		if !e.descends(u) {
			continue
		}
		childPath := append(parentPath[:len(parentPath):len(parentPath)], u.Name())
		e.applyChildren(base, u, childPath, level+1, st)
	}
}

// ordered returns the children of an upper directory with OCI opaque markers
// first, so the clear never removes entries this layer adds alongside it.
func (e *Engine) ordered(parent *tree.Node, parentPath []string) []*tree.Node {
	children := parent.Children()
	firstPlain := -1
	for i, c := range children {
		if e.markerType(c) != tree.OciOpaque {
			if firstPlain < 0 {
				firstPlain = i
			}
			continue
		}
		if firstPlain < 0 {
			continue
		}
		e.logger.Debug("opaque marker in %s listed after %q, applying it first",
			joinPath(parentPath), children[firstPlain].Name())
		out := make([]*tree.Node, 0, len(children))
		for _, o := range children {
			if e.markerType(o) == tree.OciOpaque {
				out = append(out, o)
			}
		}
		for _, o := range children {
			if e.markerType(o) != tree.OciOpaque {
				out = append(out, o)
			}
		}
		return out
	}
	return children
}

// markerType returns the node's marker type if it belongs to the engine's convention.
func (e *Engine) markerType(n *tree.Node) tree.WhiteoutType {
	typ, ok := n.Entry.WhiteoutType()
	if !ok {
		return tree.WhiteoutNone
	}
	if spec, _ := typ.Spec(); spec != e.spec {
		return tree.WhiteoutNone
	}
	return typ
}

// descends reports whether the children of upper node u are merged. Removal
// and OCI opaque markers are not directories of the merged view.
func (e *Engine) descends(u *tree.Node) bool {
	switch e.markerType(u) {
	case tree.OciRemoval, tree.OverlayFsRemoval, tree.OciOpaque:
		return false
	}
	return u.HasChildren()
}

// anchor finds the base directory under which u, at level, is applied.
// Only directories anchor.
func (e *Engine) anchor(base *tree.Tree, parentName string, parentPath []string, level int) *tree.Node {
	if e.strict {
		if n := base.Lookup(joinPath(parentPath)); n != nil && n.Entry.IsDir() {
			return n
		}
		return nil
	}
	return findAnchor(base.Root(), 0, level-1, parentName)
}

// findAnchor searches in pre-order for the first directory at depth target
// named name, never descending below target.
func findAnchor(n *tree.Node, depth, target int, name string) *tree.Node {
	if depth == target {
		if n.Name() == name && n.Entry.IsDir() {
			return n
		}
		return nil
	}
	for _, c := range n.Children() {
		if a := findAnchor(c, depth+1, target, name); a != nil {
			return a
		}
	}
	return nil
}

func (e *Engine) applyNode(base *tree.Tree, u *tree.Node, parentName string, parentPath []string, level int, st *stats) {
	upath := path.Join(joinPath(parentPath), u.Name())
	anchor := e.anchor(base, parentName, parentPath, level)
	if anchor == nil {
		st.unanchored++
		e.logger.Trace("no anchor for %s at depth %d", upath, level-1)
		return
	}

	switch typ := e.markerType(u); typ {
	case tree.OciRemoval, tree.OverlayFsRemoval:
		target := u.Entry.Target()
		victim := anchor.Child(target)
		if victim == nil {
			e.logger.Trace("%s: %s not present, nothing to remove", typ, target)
			return
		}
		anchor.Detach(victim)
		st.removed++
		e.logger.Debug("%s: removed %s (%d nodes)", typ, path.Join(joinPath(parentPath), target), victim.Count())

	case tree.OciOpaque:
		cleared := anchor.DetachAll()
		st.cleared++
		e.logger.Debug("%s: cleared %d entries of %s", typ, len(cleared), joinPath(parentPath))

	case tree.OverlayFsOpaque:
		existing := anchor.Child(u.Name())
		switch {
		case existing == nil:
			anchor.AttachChild(u.Clone(tree.RoleUpperAddition))
			st.added++
			e.logger.Debug("%s: added new opaque directory %s", typ, upath)
		case !existing.Entry.IsDir():
			anchor.Detach(existing)
			anchor.AttachChild(u.Clone(tree.RoleUpperAddition))
			st.replaced++
			e.logger.Debug("%s: replaced non-directory %s", typ, upath)
		default:
			cleared := existing.DetachAll()
			st.cleared++
			e.logger.Debug("%s: cleared %d entries of %s", typ, len(cleared), upath)
		}

	default:
		e.overlay(anchor, u, upath, st)
	}
}

// overlay handles replacement and addition of plain upper entries.
func (e *Engine) overlay(anchor, u *tree.Node, upath string, st *stats) {
	existing := anchor.Child(u.Name())
	switch {
	case existing == nil:
		anchor.AttachChild(u.Clone(tree.RoleUpperAddition))
		st.added++
		e.logger.Debug("added %s", upath)
	case existing.Entry.IsDir() && u.Entry.IsDir():
		e.logger.Trace("directory %s exists, merging into it", upath)
	default:
		anchor.Detach(existing)
		anchor.AttachChild(u.Clone(tree.RoleUpperAddition))
		st.replaced++
		e.logger.Debug("replaced %s", upath)
	}
}

func joinPath(segs []string) string {
	return path.Join(append([]string{tree.RootName}, segs...)...)
}
