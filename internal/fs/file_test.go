package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"bazil.org/fuse"
	"gotest.tools/v3/assert"
)

func TestFileOperations(t *testing.T) {
	vfs, sourceDir := setupTestFS(t)
	ctx := context.Background()

	t.Run("FileAttributes", func(t *testing.T) {
		file := lookupPath(t, vfs, "dir1", "file2.txt").(*File)

		attr := &fuse.Attr{}
		assert.NilError(t, file.Attr(ctx, attr))
		assert.Equal(t, attr.Size, uint64(len("content of dir1/file2.txt")))
		assert.Equal(t, attr.Mode, os.FileMode(0o644))
		assert.Equal(t, attr.Gid, vfs.gid)
	})

	t.Run("DeviceAttributes", func(t *testing.T) {
		file := lookupPath(t, vfs, "null").(*File)

		attr := &fuse.Attr{}
		assert.NilError(t, file.Attr(ctx, attr))
		assert.Assert(t, attr.Mode&os.ModeCharDevice != 0)
		assert.Equal(t, attr.Rdev, rdev(1, 3))
	})

	t.Run("ReadThrough", func(t *testing.T) {
		file := lookupPath(t, vfs, "dir1", "dir2", "file3.txt").(*File)

		handle, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenReadOnly}, &fuse.OpenResponse{})
		assert.NilError(t, err)
		fh := handle.(*FileHandle)

		resp := &fuse.ReadResponse{}
		assert.NilError(t, fh.Read(ctx, &fuse.ReadRequest{Offset: 11, Size: 100}, resp))
		assert.Equal(t, string(resp.Data), "dir1/dir2/file3.txt")
		assert.NilError(t, fh.Release(ctx, &fuse.ReleaseRequest{}))
	})

	t.Run("UnbackedFileIsEmpty", func(t *testing.T) {
		file := lookupPath(t, vfs, "unbacked").(*File)

		handle, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenReadOnly}, &fuse.OpenResponse{})
		assert.NilError(t, err)

		resp := &fuse.ReadResponse{}
		assert.NilError(t, handle.(*FileHandle).Read(ctx, &fuse.ReadRequest{Size: 10}, resp))
		assert.Equal(t, len(resp.Data), 0)
		assert.NilError(t, handle.(*FileHandle).Release(ctx, &fuse.ReleaseRequest{}))
	})

	t.Run("WriteAccessDenied", func(t *testing.T) {
		file := lookupPath(t, vfs, "file1.txt").(*File)

		for _, flags := range []fuse.OpenFlags{fuse.OpenWriteOnly, fuse.OpenReadWrite} {
			_, err := file.Open(ctx, &fuse.OpenRequest{Flags: flags}, &fuse.OpenResponse{})
			assert.Assert(t, errors.Is(err, syscall.EPERM), "flags %v", flags)
		}
	})

	t.Run("MissingSource", func(t *testing.T) {
		assert.NilError(t, os.Remove(filepath.Join(sourceDir, "file1.txt")))
		file := lookupPath(t, vfs, "file1.txt").(*File)

		_, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenReadOnly}, &fuse.OpenResponse{})
		assert.Assert(t, errors.Is(err, syscall.EIO))
	})

	t.Run("SetattrIsReadOnly", func(t *testing.T) {
		file := lookupPath(t, vfs, "file1.txt").(*File)
		err := file.Setattr(ctx, &fuse.SetattrRequest{}, &fuse.SetattrResponse{})
		assert.Assert(t, errors.Is(err, syscall.EROFS))
	})
}

func TestOwnerFromEnvironment(t *testing.T) {
	t.Setenv("PUID", "1234")
	t.Setenv("PGID", "not-a-number")

	vfs, _ := setupTestFS(t)
	assert.Equal(t, vfs.uid, uint32(1234))
	assert.Equal(t, vfs.gid, safeIntToUint32(os.Getgid()))
}
