package device

import "errors"

var (
	// ErrInvalidInput reports malformed or missing arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound reports a missing device row.
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports a cross-owner operation attempt.
	ErrForbidden = errors.New("forbidden")
)
