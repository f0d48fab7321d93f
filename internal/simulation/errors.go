package simulation

import "errors"

var (
	ErrObjectNotFound  = errors.New("object not found")
	ErrDuplicateObject = errors.New("object already exists")
	// ErrHandlerFailure wraps handler errors and panics. It is only logged.
	ErrHandlerFailure = errors.New("handler failure")
)
