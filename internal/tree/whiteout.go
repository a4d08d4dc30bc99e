package tree

import (
	"fmt"
	"strings"
)

const (
	// OCIWhiteoutPrefix marks a removal: ".wh.<name>" deletes <name> from lower layers.
	OCIWhiteoutPrefix = ".wh."
	// OCIWhiteoutOpaque, placed inside a directory, hides everything lower layers put there.
	OCIWhiteoutOpaque = OCIWhiteoutPrefix + OCIWhiteoutPrefix + ".opq"
	// OverlayFsOpaqueXattr set to OverlayFsOpaqueValue marks an overlayfs opaque directory.
	OverlayFsOpaqueXattr = "trusted.overlay.opaque"
	OverlayFsOpaqueValue = "y"
)

// WhiteoutSpec selects the whiteout convention for a merge session.
type WhiteoutSpec int

const (
	// WhiteoutOCI follows https://github.com/opencontainers/image-spec/blob/main/layer.md#whiteouts
	WhiteoutOCI WhiteoutSpec = iota
	// WhiteoutOverlayFs follows "whiteouts and opaque directories" in the kernel overlayfs docs.
	WhiteoutOverlayFs
)

func (s WhiteoutSpec) String() string {
	switch s {
	case WhiteoutOCI:
		return "oci"
	case WhiteoutOverlayFs:
		return "overlayfs"
	default:
		return fmt.Sprintf("WhiteoutSpec(%d)", int(s))
	}
}

// ParseWhiteoutSpec accepts "oci" / "overlayfs" and the numeric forms "0" / "1".
func ParseWhiteoutSpec(s string) (WhiteoutSpec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "oci", "0":
		return WhiteoutOCI, nil
	case "overlayfs", "overlay", "1":
		return WhiteoutOverlayFs, nil
	}
	return WhiteoutOCI, fmt.Errorf("unknown whiteout convention %q", s)
}

// WhiteoutType is the marker type of a classified upper entry.
type WhiteoutType int

const (
	WhiteoutNone WhiteoutType = iota
	OciOpaque
	OciRemoval
	OverlayFsOpaque
	OverlayFsRemoval
)

func (t WhiteoutType) String() string {
	switch t {
	case OciOpaque:
		return "oci-opaque"
	case OciRemoval:
		return "oci-removal"
	case OverlayFsOpaque:
		return "overlayfs-opaque"
	case OverlayFsRemoval:
		return "overlayfs-removal"
	default:
		return "none"
	}
}

// IsRemoval reports whether t deletes a sibling.
func (t WhiteoutType) IsRemoval() bool {
	return t == OciRemoval || t == OverlayFsRemoval
}

// IsOpaque reports whether t clears a directory.
func (t WhiteoutType) IsOpaque() bool {
	return t == OciOpaque || t == OverlayFsOpaque
}

// Classification is everything the merge needs to know about an upper entry,
// computed once from its stored attributes.
type Classification struct {
	Role Role
	Type WhiteoutType
	// Target is the sibling name a removal deletes.
	Target string
}

// Classify decides the role of an upper-layer entry under spec. It reads only
// the entry's name, kind, device numbers and xattrs.
func Classify(e *Entry, spec WhiteoutSpec) Classification {
	switch spec {
	case WhiteoutOCI:
		// The opaque literal also carries the removal prefix, so it is tested first.
		if e.Name == OCIWhiteoutOpaque {
			return Classification{Role: RoleUpperOpaque, Type: OciOpaque}
		}
		if strings.HasPrefix(e.Name, OCIWhiteoutPrefix) {
			return Classification{
				Role:   RoleUpperRemove,
				Type:   OciRemoval,
				Target: strings.TrimPrefix(e.Name, OCIWhiteoutPrefix),
			}
		}
	case WhiteoutOverlayFs:
		if IsOverlayFsWhiteout(e) {
			return Classification{Role: RoleUpperRemove, Type: OverlayFsRemoval, Target: e.Name}
		}
		if e.IsDir() && IsOverlayFsOpaque(e) {
			return Classification{Role: RoleUpperOpaque, Type: OverlayFsOpaque}
		}
	}
	return Classification{Role: RoleNone}
}

// IsOverlayFsWhiteout reports whether e is a 0/0 character device.
func IsOverlayFsWhiteout(e *Entry) bool {
	return e.Kind == KindCharDevice && e.DevMajor == 0 && e.DevMinor == 0
}

// IsOverlayFsOpaque reports whether e carries trusted.overlay.opaque=y.
func IsOverlayFsOpaque(e *Entry) bool {
	v, ok := e.Xattrs[OverlayFsOpaqueXattr]
	return ok && string(v) == OverlayFsOpaqueValue
}

// Classify stores the entry's classification. Lower entries are never markers.
func (e *Entry) Classify(spec WhiteoutSpec) {
	if e.Role == RoleLower {
		e.classification = Classification{Role: RoleLower}
		return
	}
	e.classification = Classify(e, spec)
	e.Role = e.classification.Role
}

// Spec returns the convention a marker type belongs to.
func (t WhiteoutType) Spec() (WhiteoutSpec, bool) {
	switch t {
	case OciOpaque, OciRemoval:
		return WhiteoutOCI, true
	case OverlayFsOpaque, OverlayFsRemoval:
		return WhiteoutOverlayFs, true
	}
	return WhiteoutOCI, false
}
