package vfs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that no node exists at the path.
	ErrNotFound = errors.New("vfs: not found")

	// ErrPathExists reports that the path is already occupied.
	ErrPathExists = errors.New("vfs: path already exists")

	// ErrParentMissing reports that the parent directory does not exist.
	ErrParentMissing = errors.New("vfs: parent directory missing")

	// ErrTypeMismatch reports a file operation on a directory or vice versa.
	ErrTypeMismatch = errors.New("vfs: node kind mismatch")

	// ErrRootDeletion reports an attempt to delete or move the root.
	ErrRootDeletion = errors.New("vfs: cannot remove root")

	// ErrInvalidPath reports a path that cannot be normalized.
	ErrInvalidPath = errors.New("vfs: invalid path")
)

// PersistenceError reports a failed backend write during a mutation. The
// in-memory tree is left unchanged when it is returned.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("vfs: %s %s: persistence failed: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op, path string, err error) error {
	return &PersistenceError{Op: op, Path: path, Err: err}
}
