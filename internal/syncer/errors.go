package syncer

import (
	"errors"
	"fmt"
)

// ErrSignedOut is returned when a sync operation is requested without a session.
var ErrSignedOut = errors.New("not signed in")

// ErrChangedDuringSync marks a row that was uploaded but edited locally
// before it could be flagged synced.
var ErrChangedDuringSync = errors.New("changed locally during sync")

// MergeError reports a merge in which some rows did not end up synced.
// Rows that did stay synced.
type MergeError struct {
	// Attempted is the number of unsynced rows the merge tried to upload.
	Attempted int

	// Failed is the number of rows that remain unsynced.
	Failed int

	// Errs holds one error per failed row. Rows edited mid-merge wrap
	// ErrChangedDuringSync.
	Errs []error
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	return fmt.Sprintf("merge: %d of %d rows failed: %v", e.Failed, e.Attempted, errors.Join(e.Errs...))
}

// Unwrap returns the per-row errors.
func (e *MergeError) Unwrap() []error {
	return e.Errs
}

// IsMergeError returns true if err is or wraps a *MergeError.
func IsMergeError(err error) bool {
	var me *MergeError
	return errors.As(err, &me)
}
