// Package cloud is the reference hosted store: a gin HTTP server that keeps
// owner-scoped transaction rows behind password accounts and bearer tokens.
//
// Rows are kept in any remote.Adapter (in memory for tests, Postgres in
// deployments). remote.Client is the matching client.
package cloud
