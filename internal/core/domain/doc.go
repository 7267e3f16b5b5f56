// Package domain defines the core data model of tablesync.
//
// Domain types are pure values without IO dependencies. This package contains:
//
//   - Table: an immutable, versioned snapshot of one named collection
//   - Reference and Field: the tagged Reference | Value variant stored in records
//   - Record and Object: stored rows and their fully dereferenced form
//   - Errors: domain error codes and the sentinels surfaced to callers
//
// Tables are never mutated in place. Derived tables (With, Without) carry the
// version of the snapshot they were derived from, which is what a
// synchronization primitive compares against when a proposal is committed.
package domain
