package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that no cluster with the given id is registered.
	ErrNotFound = errors.New("cluster not registered")

	// ErrInvalidRecord indicates that a record failed validation.
	ErrInvalidRecord = errors.New("invalid cluster record")
)

// NotFoundError carries the id that was looked up.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cluster %q not registered", e.ID)
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// UserFacingError returns a message suitable for the GUI.
func (e *NotFoundError) UserFacingError() string {
	return e.Error()
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, reason)
}
