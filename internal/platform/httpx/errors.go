package httpx

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound = errors.New("resource not found")
	ErrConflict = errors.New("conflicting entry")
)
