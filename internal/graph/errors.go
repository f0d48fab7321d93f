package graph

import "errors"

var (
	// ErrNotFound is returned for an unknown node or edge identifier.
	ErrNotFound = errors.New("not found")
	// ErrNoPath is returned when both nodes exist but neither reaches the other.
	ErrNoPath = errors.New("no path")
	// ErrInvalidElement is returned when construction input is malformed.
	ErrInvalidElement = errors.New("invalid element")
)
