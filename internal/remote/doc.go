// Package remote is the boundary to the hosted account store.
//
// The hosted store is one table of transaction rows, each owned by an
// account. Adapter is the row-level API the sync engine consumes; every call
// is scoped to an owner id and unauthenticated calls are rejected with
// ErrUnauthenticated.
//
// Implementations:
//   - Memory: in-process table, used by tests and by the reference server
//   - Postgres: lib/pq backed table, used by the reference server
//   - Client: HTTP client for the reference server (see package cloud)
//
// All failures are returned as *Error. The sync engine treats them as
// transient: affected rows stay unsynced and are retried on the next trigger.
package remote
