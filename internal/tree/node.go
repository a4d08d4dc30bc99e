package tree

// Node owns one entry and an ordered list of owned children. A node has at
// most one owner; AttachChild moves a subtree in, Detach moves it out.
type Node struct {
	Entry    *Entry
	children []*Node
}

// NewNode wraps an entry in a childless node.
func NewNode(e *Entry) *Node {
	return &Node{Entry: e}
}

// Name is shorthand for n.Entry.Name.
func (n *Node) Name() string {
	return n.Entry.Name
}

// Children returns the children in insertion order. The slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// HasChildren reports whether n has at least one child.
func (n *Node) HasChildren() bool {
	return len(n.children) > 0
}

// Child returns the first child with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.children {
		if c.Entry.Name == name {
			return c
		}
	}
	return nil
}

// AttachChild appends c, which must not be owned by another node.
func (n *Node) AttachChild(c *Node) {
	n.children = append(n.children, c)
}

// Detach removes c, found by identity, and returns it. It returns nil if c is
// not a child of n.
func (n *Node) Detach(c *Node) *Node {
	for i, child := range n.children {
		if child == c {
			copy(n.children[i:], n.children[i+1:])
			n.children[len(n.children)-1] = nil
			n.children = n.children[:len(n.children)-1]
			return c
		}
	}
	return nil
}

// DetachAll removes every child and returns them.
func (n *Node) DetachAll() []*Node {
	out := n.children
	n.children = nil
	return out
}

// Clone returns a childless copy of n carrying role.
func (n *Node) Clone(role Role) *Node {
	return NewNode(n.Entry.cloneAs(role))
}

// Count returns the number of nodes in the subtree rooted at n, n included.
func (n *Node) Count() int {
	total := 1
	for _, c := range n.children {
		total += c.Count()
	}
	return total
}
