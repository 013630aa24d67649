package pooling

import (
	"errors"
	"fmt"

	"github.com/parthgupta9/ride-pooling/internal/storage"
)

// ErrNotFound mirrors the store sentinel so handlers only import this
// package.
var ErrNotFound = storage.ErrNotFound

// ValidationError rejects malformed or out-of-range input synchronously;
// such requests are never enqueued.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ConflictError reports a lifecycle race lost by the caller, e.g. cancelling
// a request that a batch cycle already assigned. Not retried.
type ConflictError struct {
	ID     string
	Status string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s is %s", e.ID, e.Status)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
