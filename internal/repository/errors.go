package repository

import "errors"

// ErrNotFound marks a referenced entity that does not exist (or is not
// visible to the requesting coach). Callers abort with no partial writes.
var ErrNotFound = errors.New("not found")

// ErrConflict marks an insert that lost a unique-constraint race with a
// concurrent writer. Upsert callers re-fetch the winning row and merge.
var ErrConflict = errors.New("conflict")
