package merge

import (
	"mergetree/internal/tree"
)

// Stack owns a base tree and folds upper layers onto it in order. Each layer
// sees the complete result of the layers applied before it, so when two
// layers touch the same path the later one wins.
type Stack struct {
	base   *tree.Tree
	engine *Engine
	layers int
}

// NewStack takes ownership of base.
func NewStack(base *tree.Tree, spec tree.WhiteoutSpec, opts ...Option) *Stack {
	return &Stack{
		base:   base,
		engine: NewEngine(spec, opts...),
	}
}

// Apply overlays one upper layer.
func (s *Stack) Apply(upper *tree.Tree) {
	s.layers++
	s.engine.logger.Debug("applying layer %d (%d nodes) with %s whiteouts", s.layers, upper.Len(), s.engine.spec)
	s.engine.Apply(s.base, upper)
}

// ApplyAll overlays uppers left to right.
func (s *Stack) ApplyAll(uppers ...*tree.Tree) {
	for _, upper := range uppers {
		s.Apply(upper)
	}
}

// Tree returns the merged tree.
func (s *Stack) Tree() *tree.Tree {
	return s.base
}

// Layers returns how many upper layers have been applied.
func (s *Stack) Layers() int {
	return s.layers
}
