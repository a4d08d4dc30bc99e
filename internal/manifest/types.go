// Package manifest stores a layer stack description as JSON.
package manifest

import "mergetree/internal/tree"

// Version is the manifest format written by Save.
const Version = 1

// Manifest describes one merge: a base layer, upper layers applied in order,
// and the whiteout convention they use. Layers are directories or tar files.
type Manifest struct {
	// Version for future compatibility
	Version int `json:"version"`

	// Base layer, role Lower
	Base string `json:"base"`

	// Upper layers, lowest first
	Uppers []string `json:"uppers"`

	// Whiteout convention: "oci" or "overlayfs"
	Whiteout string `json:"whiteout"`
}

// Spec parses the whiteout convention.
func (m *Manifest) Spec() (tree.WhiteoutSpec, error) {
	return tree.ParseWhiteoutSpec(m.Whiteout)
}
