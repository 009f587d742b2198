package ledger

import (
	"errors"
	"fmt"
)

// ErrTrashed is returned when a content change targets a soft-deleted row.
// Trashed rows are kept for record keeping and cannot be edited.
var ErrTrashed = errors.New("transaction is in the trash")

// ValidationError reports user input that was rejected before any write.
type ValidationError struct {
	// Field is the form field at fault ("person_name", "amount", ...).
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StorageError wraps a local persistence failure (I/O, quota, corruption).
// Operations returning a StorageError have not been applied.
type StorageError struct {
	// Op names the store operation ("put", "update", "bulk put", ...).
	Op string

	// Err is the underlying driver error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("local store: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorageError returns true if err is or wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
