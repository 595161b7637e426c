package feature

import "errors"

var (
	// ErrNotFound indicates the requested feature does not exist.
	ErrNotFound = errors.New("feature not found")

	// ErrVersionConflict indicates a compare-and-swap update lost a race:
	// a stored feature changed since it was read.
	ErrVersionConflict = errors.New("feature version conflict")

	// ErrInvalidTransition indicates a status change not allowed by the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidFeature indicates a feature failed validation.
	ErrInvalidFeature = errors.New("invalid feature")

	// ErrDuplicate indicates a feature with the same ID already exists.
	ErrDuplicate = errors.New("feature already exists")
)
