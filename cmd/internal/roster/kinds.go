package roster

import "errors"

var (
	// ErrInvalidInput reports malformed or missing arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound reports a missing voter, candidate, or grant row.
	ErrNotFound = errors.New("not found")
	// ErrFieldNotAllowed reports an update touching a field outside the
	// caller's permission grant.
	ErrFieldNotAllowed = errors.New("field not allowed")
	// ErrConflict reports a uniqueness violation.
	ErrConflict = errors.New("conflict")
)
