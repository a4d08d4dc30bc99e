// Package tree models one filesystem snapshot as an owned, insertion-ordered
// tree of entries and classifies upper-layer entries as whiteout markers.
package tree

import (
	"fmt"
	"io/fs"
	"sort"
	"time"
)

// Kind is the coarse file type of an entry.
type Kind int

const (
	KindOther Kind = iota
	KindDirectory
	KindRegular
	KindCharDevice
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRegular:
		return "regular"
	case KindCharDevice:
		return "char"
	default:
		return "other"
	}
}

// KindFromMode derives the kind from fs.FileMode type bits.
func KindFromMode(mode fs.FileMode) Kind {
	switch {
	case mode.IsDir():
		return KindDirectory
	case mode.IsRegular():
		return KindRegular
	case mode&fs.ModeDevice != 0 && mode&fs.ModeCharDevice != 0:
		return KindCharDevice
	default:
		return KindOther
	}
}

// Role records which layer an entry came from and, for upper layers,
// whether it is a marker.
type Role int

const (
	RoleNone Role = iota
	RoleLower
	RoleUpperAddition
	RoleUpperOpaque
	RoleUpperRemove
)

func (r Role) String() string {
	switch r {
	case RoleLower:
		return "lower"
	case RoleUpperAddition:
		return "upper-addition"
	case RoleUpperOpaque:
		return "upper-opaque"
	case RoleUpperRemove:
		return "upper-remove"
	default:
		return "none"
	}
}

// Xattrs maps extended attribute keys to raw values.
type Xattrs map[string][]byte

// Clone returns a deep copy.
func (x Xattrs) Clone() Xattrs {
	if x == nil {
		return nil
	}
	out := make(Xattrs, len(x))
	for k, v := range x {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Keys returns the attribute keys in sorted order.
func (x Xattrs) Keys() []string {
	keys := make([]string, 0, len(x))
	for k := range x {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entry is the data carried by one tree node.
type Entry struct {
	Name string
	Kind Kind
	// Mode holds the raw permission and type bits.
	Mode fs.FileMode
	// DevMajor and DevMinor are only meaningful for KindCharDevice.
	DevMajor uint32
	DevMinor uint32
	Size     int64
	ModTime  time.Time
	Xattrs   Xattrs
	// Source is where the entry's content can be read from, if anywhere.
	Source string

	Role           Role
	classification Classification
}

// NewEntry returns an entry with the kind derived from mode.
func NewEntry(name string, mode fs.FileMode) *Entry {
	return &Entry{
		Name: name,
		Kind: KindFromMode(mode),
		Mode: mode,
	}
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Classification returns the stored classification.
func (e *Entry) Classification() Classification {
	return e.classification
}

// IsWhiteout reports whether the entry is a removal or opaque marker.
func (e *Entry) IsWhiteout() bool {
	return e.Role == RoleUpperRemove || e.Role == RoleUpperOpaque
}

// IsRemove reports whether the entry is a removal marker.
func (e *Entry) IsRemove() bool {
	return e.Role == RoleUpperRemove
}

// IsOpaque reports whether the entry is an opaque marker.
func (e *Entry) IsOpaque() bool {
	return e.Role == RoleUpperOpaque
}

// WhiteoutType returns the fine-grained marker type stored at classification time.
func (e *Entry) WhiteoutType() (WhiteoutType, bool) {
	if e.Role == RoleLower || e.classification.Type == WhiteoutNone {
		return WhiteoutNone, false
	}
	return e.classification.Type, true
}

// Target is the name a removal marker deletes.
func (e *Entry) Target() string {
	return e.classification.Target
}

// cloneAs copies the entry's metadata under a new role. Classification is
// not carried over: the copy is plain content in the tree it joins.
func (e *Entry) cloneAs(role Role) *Entry {
	c := *e
	c.Xattrs = e.Xattrs.Clone()
	c.Role = role
	c.classification = Classification{Role: role}
	return &c
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s(%s,%s)", e.Name, e.Kind, e.Role)
}
