// Package apperr defines the sentinel errors shared across Othala.
package apperr

import "errors"

var (
	// ErrNotFound marks a missing file, vault, or registered artifact.
	ErrNotFound = errors.New("not found")
	// ErrFormat marks a malformed identifier or checksum string.
	ErrFormat = errors.New("invalid format")
	// ErrMismatch marks a checksum verification failure.
	ErrMismatch = errors.New("checksum mismatch")
	// ErrMissingSource marks a sync requested from a source that has no value.
	ErrMissingSource = errors.New("missing sync source")
	// ErrCycle marks a lineage traversal that exceeded the hop bound.
	ErrCycle = errors.New("lineage cycle detected")
	// ErrAlreadyExists marks a conflicting create.
	ErrAlreadyExists = errors.New("already exists")
)
