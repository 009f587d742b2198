package remote

import (
	"context"
	"errors"
	"fmt"
)

// Adapter is the owner-scoped row API of the hosted store.
type Adapter interface {
	// Insert always creates a new row owned by ownerID and returns its id.
	// rec.ID is ignored.
	Insert(ctx context.Context, ownerID string, rec Record) (string, error)

	// Upsert updates the owner's row with id rec.ID, or creates it if rec.ID
	// is empty or unknown. Returns the row id.
	Upsert(ctx context.Context, ownerID string, rec Record) (string, error)

	// Select returns every row owned by ownerID, newest date first.
	Select(ctx context.Context, ownerID string) ([]Record, error)

	// UpdateByRemoteID patches one of the owner's rows.
	// Returns an error wrapping ErrNotFound if the owner has no such row.
	UpdateByRemoteID(ctx context.Context, ownerID, remoteID string, p Patch) error
}

var (
	// ErrUnauthenticated is returned for calls without a valid owner/session.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound is returned when a row id is unknown for the owner.
	ErrNotFound = errors.New("remote row not found")
)

// Error is a failure talking to the hosted store (network, auth, quota).
type Error struct {
	// Op names the adapter call ("insert", "upsert", "select", "update").
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRemoteError returns true if err is or wraps an *Error.
func IsRemoteError(err error) bool {
	var re *Error
	return errors.As(err, &re)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, Err: err}
}
