package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a concurrent writer won; the request can be retried.
	ErrConflict = errors.New("concurrent update conflict")
)
