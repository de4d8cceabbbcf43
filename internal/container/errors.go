package container

import "errors"

var (
	// ErrNotFound indicates the requested dataset or attribute does not exist.
	ErrNotFound = errors.New("container: not found")
	// ErrExists indicates a dataset already occupies the path.
	ErrExists = errors.New("container: dataset exists")
	// ErrTypeMismatch indicates a dataset was read with the wrong element type.
	ErrTypeMismatch = errors.New("container: dtype mismatch")
	// ErrReadOnly indicates a write was attempted on a read-only handle.
	ErrReadOnly = errors.New("container: read-only")
	// ErrBusy indicates another process holds the container lock.
	ErrBusy = errors.New("container: locked by another process")
	// ErrSchemaMismatch indicates the container was written by an incompatible version.
	ErrSchemaMismatch = errors.New("container: schema version mismatch")
	// ErrImmutableGroup indicates an attempt to replace acquisition data.
	ErrImmutableGroup = errors.New("container: acquisition data is immutable")
)
