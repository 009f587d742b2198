// Package store provides the SQLite-backed local store for tally.
//
// The local store is the source of truth on the device. It holds two tables:
//   - transactions: one row per ledger.Transaction, keyed by local id
//   - settings: arbitrary key -> JSON value pairs
//
// # Patterns
//
// Upsert by id
//   - Put and BulkPut use INSERT ... ON CONFLICT(id) DO UPDATE
//   - The same id overwrites in place; ids stay unique
//
// Soft delete only
//   - SoftDelete flips is_deleted and stamps deleted_at exactly once
//   - No method removes a transaction row
//
// Sync flag
//   - SoftDelete clears synced_to_cloud; Update clears it only when told to
//   - MarkSynced is the only writer that sets it
//
// Deterministic ordering
//   - Every list query ends with id ASC COLLATE BINARY as a tie breaker
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Timestamps are stored as fixed-width UTC text so that lexical order equals
// chronological order. Amounts are stored as decimal strings.
//
// Every error returned by this package is a *ledger.StorageError.
package store
