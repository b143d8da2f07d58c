package storage

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// ErrStoreUnavailable means the local database could not be opened at all
// (missing permissions, unwritable directory, corrupt file). Not retryable
// within the session; callers should degrade to memory-only behavior
// rather than crash the capture flow.
var ErrStoreUnavailable = errors.New("event store unavailable")

// ErrConflict means a write violated a store constraint, most commonly a
// duplicate (device_id, seq) pair. Retryable after the caller corrects the
// offending record, e.g. by assigning a fresh seq.
var ErrConflict = errors.New("constraint conflict")

// isConstraintErr reports whether err is a SQLite constraint violation.
func isConstraintErr(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.Code == sqlite3.ErrConstraint
}
