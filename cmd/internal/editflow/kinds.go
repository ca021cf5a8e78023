package editflow

import "errors"

var (
	// ErrInvalidInput reports malformed or missing arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound reports a missing request or referenced row.
	ErrNotFound = errors.New("not found")
	// ErrNotPending reports a disposition attempt on an already-settled request.
	ErrNotPending = errors.New("request is not pending")
	// ErrFieldNotRequestable reports a submission for a field outside the
	// workflow's allow-list.
	ErrFieldNotRequestable = errors.New("field not requestable")
)
