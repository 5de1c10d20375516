package domain

import "errors"

// Error taxonomy surfaced to callers. Wrap these with fmt.Errorf("...: %w")
// so transports can map them to status codes with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrInvalidTransition = errors.New("invalid status transition")
)
