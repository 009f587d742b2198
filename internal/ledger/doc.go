// Package ledger defines the transaction entity shared by every layer of tally.
//
// A Transaction is the canonical local representation of a single income
// ("received") or expense ("sent") entry. Fields that may be absent (cloud id,
// attachment, deletion time) are modelled with Opt rather than nil pointers so
// that every consumer has to handle the missing case explicitly.
//
// # Lifecycle
//
//   - created: Synced=false, IsDeleted=false, CreatedAt == UpdatedAt
//   - updated: content fields change, UpdatedAt moves, Synced resets to false
//   - soft-deleted: IsDeleted=true and DeletedAt set together, Synced=false
//   - synced: CloudID set and Synced=true; deletion state untouched
//
// There is no hard delete. Aggregates (see ComputeStats) only consider rows
// that are not deleted.
package ledger
