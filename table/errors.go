package table

import (
	pkgerrors "github.com/pkg/errors"

	ierrs "deltamain/internal/errs"
)

// Re-exported so callers of this package need only import table, not
// also internal/errs, to errors.Is against them.
var (
	ErrAlreadyExists  = ierrs.ErrAlreadyExists
	ErrNotFound       = ierrs.ErrNotFound
	ErrNotInSnapshot  = ierrs.ErrNotInSnapshot
	ErrConflict       = ierrs.ErrConflict
	ErrSchemaMismatch = ierrs.ErrSchemaMismatch

	errReservedKey = ierrs.ErrReservedKey
)

// errs wraps a sentinel with the offending key for a clearer error
// message, matching the teacher's github.com/pkg/errors.Wrapf
// call-site-context convention.
func errs(sentinel error, key uint64) error {
	return pkgerrors.Wrapf(sentinel, "key %d", key)
}
