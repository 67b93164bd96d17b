package registry

import "errors"

var (
	// ErrForbidden is returned when the authenticated user does not own
	// the package being uploaded.
	ErrForbidden = errors.New("authenticated user does not own this package")

	// ErrConflict is returned when the archive key for an identity already
	// exists. Published versions are immutable.
	ErrConflict = errors.New("version already published")

	// ErrNotFound is returned when no version of a package exists.
	ErrNotFound = errors.New("package not found")

	// ErrStorageWrite marks a failed write during the dual-write phase.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrStorageUnavailable marks a backend failure outside the write
	// path, such as a failed existence check or listing.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
