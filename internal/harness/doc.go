// Package harness runs YAML scenarios against a tracker.
//
// Each scenario gets a fresh in-memory store, a manual clock, sequential
// ids ("tx-1", "tx-2", ...) and an in-memory remote store whose ids run
// "cloud-1", "cloud-2", .... Runs are therefore deterministic and their
// traces can be compared against golden files.
//
// # Scenario Format
//
//	name: guest_merge
//	description: "Rows added while signed out are uploaded by merge"
//	clock: 2024-03-15T09:00:00Z
//	remote:
//	  - { owner: u1, person_name: Alice, amount: "10", type: received, date: 2024-03-01 }
//	steps:
//	  - action: add
//	    args: { person_name: Bob, amount: 40, type: sent, date: 2024-03-14 }
//	  - action: sign_in
//	    args: { owner: u1 }
//	  - action: merge
//	    expect: ok
//	assertions:
//	  - type: unsynced
//	    count: 0
//	  - type: transaction
//	    ref: 1
//	    expect: { synced: true, cloud_id: cloud-2 }
//
// # Actions
//
//   - add, update {ref}, delete {ref}: local edits through the tracker
//   - sign_in {owner}, sign_out: session changes
//   - offline, online: connectivity changes
//   - sync, merge, import: explicit sync operations
//   - advance {by}: moves the clock by a Go duration
//   - fail_remote {person_name, op}, heal_remote: remote fault injection
//
// # Assertion Types
//
//   - stats: subset match on the ledger.Stats JSON fields
//   - unsynced, active, trashed: local row counts
//   - remote_rows {owner}: remote row count for one owner
//   - remote_calls {op}: number of remote calls of one kind
//   - transaction {ref}: subset match on one transaction
package harness
