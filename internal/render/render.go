// Package render prints merged trees for humans and scripts.
package render

import (
	"bufio"
	"io"
	"strings"

	"mergetree/internal/tree"
)

const (
	branch = "├──"
	indent = "│  "
)

// Tree writes the root name followed by one "├── name" line per node,
// indented by depth.
func Tree(w io.Writer, t *tree.Tree) error {
	bw := bufio.NewWriter(w)
	err := t.Walk(func(_ string, depth int, n *tree.Node) error {
		if depth == 0 {
			_, err := bw.WriteString(n.Name() + "\n")
			return err
		}
		_, err := bw.WriteString(strings.Repeat(indent, depth-1) + branch + " " + n.Name() + "\n")
		return err
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// Paths writes the absolute path of every non-root node in pre-order, one per
// line. Directories end in "/".
func Paths(w io.Writer, t *tree.Tree) error {
	bw := bufio.NewWriter(w)
	err := t.Walk(func(p string, depth int, n *tree.Node) error {
		if depth == 0 {
			return nil
		}
		if n.Entry.IsDir() {
			p += "/"
		}
		_, err := bw.WriteString(p + "\n")
		return err
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}
