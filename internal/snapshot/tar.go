package snapshot

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strings"

	"mergetree/internal/logging"
	"mergetree/internal/tree"
)

// paxXattrPrefix is how tar writers record extended attributes.
const paxXattrPrefix = "SCHILY.xattr."

var gzipMagic = []byte{0x1f, 0x8b}

// ReadTar builds a snapshot from a tar stream, gunzipping it first when it
// starts with the gzip magic. Unless role is tree.RoleLower the tree is
// classified under spec.
func ReadTar(r io.Reader, role tree.Role, spec tree.WhiteoutSpec) (*tree.Tree, error) {
	t, err := readTar(r, "", role)
	if err != nil {
		return nil, err
	}
	if role != tree.RoleLower {
		t.Classify(spec)
		logMarkers(logging.GetLogger().WithPrefix("snapshot"), t)
	}
	return t, nil
}

// readTar places every header at its cleaned path. Parents missing from the
// stream are created as directories; a repeated path replaces the earlier
// entry.
func readTar(r io.Reader, name string, role tree.Role) (*tree.Tree, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(len(gzipMagic)); err == nil && bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, newError(OpTar, name, err)
		}
		defer zr.Close()
		src = zr
	}

	t := tree.New(role)
	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newError(OpTar, name, err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		e, err := tarEntry(hdr)
		if err != nil {
			return nil, newError(OpTar, joinName(name, hdr.Name), err)
		}
		e.Role = role
		t.Insert(hdr.Name, e)
	}
	return t, nil
}

func tarEntry(hdr *tar.Header) (*tree.Entry, error) {
	var mode fs.FileMode
	switch hdr.Typeflag {
	case tar.TypeReg, tar.TypeCont, tar.TypeGNUSparse:
	case tar.TypeDir:
		mode = fs.ModeDir
	case tar.TypeChar:
		mode = fs.ModeDevice | fs.ModeCharDevice
	case tar.TypeBlock:
		mode = fs.ModeDevice
	case tar.TypeFifo:
		mode = fs.ModeNamedPipe
	case tar.TypeSymlink:
		mode = fs.ModeSymlink
	case tar.TypeLink:
		mode = fs.ModeIrregular
	default:
		return nil, fmt.Errorf("%w: typeflag %q", ErrUnsupportedEntry, hdr.Typeflag)
	}
	mode |= fs.FileMode(hdr.Mode) & fs.ModePerm

	e := tree.NewEntry("", mode)
	e.Size = hdr.Size
	e.ModTime = hdr.ModTime
	if e.Kind == tree.KindCharDevice {
		e.DevMajor = clampUint32(hdr.Devmajor)
		e.DevMinor = clampUint32(hdr.Devminor)
	}
	for k, v := range hdr.PAXRecords {
		if !strings.HasPrefix(k, paxXattrPrefix) {
			continue
		}
		if e.Xattrs == nil {
			e.Xattrs = make(tree.Xattrs)
		}
		e.Xattrs[strings.TrimPrefix(k, paxXattrPrefix)] = []byte(v)
	}
	return e, nil
}

func clampUint32(n int64) uint32 {
	if n < 0 {
		return 0
	}
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

func joinName(archive, member string) string {
	if archive == "" {
		return member
	}
	return archive + ":" + member
}
