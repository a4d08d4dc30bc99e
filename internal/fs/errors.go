// Package fs serves a merged tree as a read-only FUSE filesystem.
//
// This file contains error types and error handling utilities.
package fs

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"bazil.org/fuse"

	"mergetree/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrPathNotFound indicates a path doesn't exist in the merged tree
	ErrPathNotFound = errors.New("path not found in merged tree")

	// ErrReadOnly indicates attempt to modify the read-only view
	ErrReadOnly = errors.New("filesystem is read-only")

	// ErrNoSource indicates a file whose layer content can no longer be read
	ErrNoSource = errors.New("layer content unavailable")

	// ErrNoXattr indicates an extended attribute the entry does not carry
	ErrNoXattr = errors.New("no such attribute")
)

// Error wraps filesystem errors with context about the operation and
// affected path to provide more detailed error information.
type Error struct {
	Op   string // Operation that failed (e.g., "lookup", "open")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// ToFuseError converts an error to the errno FUSE should answer with.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	var fsErr *Error
	if errors.As(err, &fsErr) {
		errLogger.Trace("Converting Error to FUSE error: %v", fsErr)

		switch {
		case errors.Is(fsErr.Err, ErrPathNotFound):
			return syscall.ENOENT
		case errors.Is(fsErr.Err, ErrReadOnly):
			return syscall.EROFS
		case errors.Is(fsErr.Err, ErrNoSource):
			return syscall.EIO
		case errors.Is(fsErr.Err, ErrNoXattr):
			return fuse.ErrNoXattr
		}
	}

	errLogger.Trace("Converting standard error to FUSE error: %v", err)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, os.ErrPermission):
		return syscall.EACCES
	default:
		errLogger.Debug("Unknown error type, returning EIO: %v", err)
		return syscall.EIO
	}
}

// NewFSError creates a new Error with the given operation, path, and underlying error
func NewFSError(op string, path string, err error) *Error {
	fsErr := &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
	errLogger.Debug("Created new Error: %v", fsErr)
	return fsErr
}

// Common operation names for consistent logging and error reporting
const (
	OpLookup   = "lookup"   // Looking up a path
	OpReadDir  = "readdir"  // Reading directory contents
	OpOpen     = "open"     // Opening a file
	OpRead     = "read"     // Reading from a file
	OpSetattr  = "setattr"  // Setting file attributes
	OpGetxattr = "getxattr" // Reading an extended attribute
)
