// Package memory provides an in-process synchronization backend.
//
// Each table is one cas record kept in a sharded map. Commits to the same
// table are serialized by a per-table mutex; commits to different tables
// proceed in parallel. Nothing is persisted.
package memory
