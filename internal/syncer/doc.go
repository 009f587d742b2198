// Package syncer reconciles the local store with an owner's remote store.
//
// Three operations move data:
//
//   - Push sends every unsynced local row to the remote store and marks it
//     synced. At most one push runs at a time; a push requested while one is
//     in flight is dropped. Per-row failures are logged and the row stays
//     unsynced until the next push.
//   - Import copies every remote row into the local store as a new local
//     row. It is additive: rows are not matched against existing local data.
//   - Merge inserts every unsynced local row as a new remote row. Unlike
//     Push it reports partial failure to the caller as a *MergeError.
//
// Remote to local flow happens only through Import.
package syncer
