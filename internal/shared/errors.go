package shared

import "errors"

var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates the entity is not in a status that allows the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict indicates a uniqueness rule rejected the write.
	ErrConflict = errors.New("conflict")
	// ErrUnprocessable indicates well-formed input that the current balances cannot absorb.
	ErrUnprocessable = errors.New("unprocessable")
)
