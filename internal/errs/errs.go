// Package errs collects the status errors the storage core returns to its
// callers. Every operation in table, gc and store returns one of these
// (wrapped with github.com/pkg/errors for call-site context) rather than
// panicking; panics are reserved for the internal invariant violations
// described in the engine's data model.
package errs

import "errors"

var (
	// ErrAlreadyExists is returned by Insert when the key already has a
	// visible, non-deleted version.
	ErrAlreadyExists = errors.New("deltamain: key already exists")
	// ErrNotFound is returned by Update/Remove when the key has no visible
	// record.
	ErrNotFound = errors.New("deltamain: key not found")
	// ErrNotInSnapshot is returned when a read or write is blocked by a
	// version the caller's snapshot cannot see.
	ErrNotInSnapshot = errors.New("deltamain: version not visible to snapshot")
	// ErrConflict is returned when a CAS-based update loses a race against
	// a concurrent writer.
	ErrConflict = errors.New("deltamain: concurrent update conflict")
	// ErrOutOfMemory is returned when the page allocator's arena is
	// exhausted.
	ErrOutOfMemory = errors.New("deltamain: page allocator exhausted")
	// ErrSchemaMismatch is returned when a payload is incompatible with the
	// table's schema.
	ErrSchemaMismatch = errors.New("deltamain: payload incompatible with schema")
	// ErrReservedKey is returned when a caller attempts to use a key that
	// collides with a hash index sentinel.
	ErrReservedKey = errors.New("deltamain: key collides with a hash index sentinel")
	// ErrTableExists is returned by CreateTable when the name is taken.
	ErrTableExists = errors.New("deltamain: table already exists")
	// ErrTableNotFound is returned by GetTableID for an unknown name.
	ErrTableNotFound = errors.New("deltamain: table not found")
)
