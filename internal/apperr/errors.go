// Package apperr defines the sentinel errors shared across Dagaz layers.
package apperr

import "errors"

var (
	// ErrInvalidPath marks a path that escapes the workspace root.
	ErrInvalidPath = errors.New("invalid path")
	// ErrRestrictedPath marks a path inside the reserved metadata
	// subtree accessed without explicit permission.
	ErrRestrictedPath = errors.New("restricted path")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	// ErrNoPreviousVersion is returned by undo when no snapshot exists.
	ErrNoPreviousVersion = errors.New("no previous version")
	// ErrIndexUnavailable is returned when search is invoked before a
	// workspace is open.
	ErrIndexUnavailable = errors.New("index unavailable")
)
