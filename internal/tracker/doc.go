// Package tracker is the single entry point the presentation layer uses.
//
// A Tracker wraps the local store, keeps in-memory snapshots of the active
// and trashed lists, computes statistics and drives the sync engine: after
// every local mutation while signed in and online it starts a background
// push, and it pushes again when connectivity comes back. Signing in
// imports the account's remote rows; merging guest data is an explicit
// call.
//
// Local writes never wait for the network. Background pushes can be
// awaited with Wait, which tests use to make sync effects deterministic.
package tracker
