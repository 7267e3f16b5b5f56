// Package main provides the entry point for tablesync.
//
// tablesync reads and writes versioned tables stored in memory, in Badger
// or in a Raft cluster, exports and imports snapshots, and follows tables
// as they change.
package main
