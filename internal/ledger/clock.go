package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies wall time for timestamps (CreatedAt, UpdatedAt, DeletedAt)
// and for the "today" bucket of the daily stats.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock, in UTC.
type SystemClock struct{}

// Now returns the current UTC time with the monotonic reading stripped,
// so values survive a store round-trip unchanged.
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Round(0)
}

// IDGenerator produces identifiers for new local rows.
// Implemented by UUIDGenerator (production) and testutil.SeqIDs (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random (version 4) UUIDs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDGenerator struct{}

// NewID returns a new random UUID as a hyphenated string.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}
