// Package service provides the table services built on a synchronization
// primitive.
//
// Every service here reads and writes a table only through a Synchronizer,
// which reads the canonical snapshot when called with nil and commits a
// proposed snapshot otherwise. The services hold no state of their own except
// the reactive cache.
//
// This package contains:
//
//   - TableService: per-key Get, Set and Delete with commit reporting
//   - GetAll: concurrent all-or-nothing multi-key reads
//   - ConstructObjectFromTables: recursive cross-table reference resolution
//   - ReactiveTableService: cached table with optimistic or pessimistic
//     mutations and observer notification
//   - Chain, WithMetrics, WithRateLimit, WithLogging: synchronizer middleware
//
// Errors returned to callers are ErrMissingKey or ErrMissingTableService from
// the domain package; the underlying failure is kept as the error's cause.
package service
