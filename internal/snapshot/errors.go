// Package snapshot builds tree.Tree snapshots from directories and tar layers.
//
// This file contains error types and error handling utilities.
package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDirectory indicates the snapshot root is not a directory
	ErrNotDirectory = errors.New("snapshot root is not a directory")

	// ErrUnsupportedEntry indicates a tar header the reader cannot place in a tree
	ErrUnsupportedEntry = errors.New("unsupported entry")
)

// Error wraps a build failure with the operation and the path it concerned.
type Error struct {
	Op   string // Operation that failed (e.g., "stat", "readdir")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("snapshot %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("snapshot %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

// Operation names used in Error.Op
const (
	OpStat    = "stat"    // Reading entry metadata
	OpReadDir = "readdir" // Listing a directory
	OpXattr   = "xattr"   // Reading extended attributes
	OpTar     = "tar"     // Reading a tar stream
)
