package registry

import "errors"

var (
	// ErrNotFound is returned by any operation referencing an unknown backend id.
	ErrNotFound = errors.New("registry: backend not found")
	// ErrDuplicateBackend is returned by add_backend when the id already exists.
	ErrDuplicateBackend = errors.New("registry: backend already exists")
)
