// Package storage turns named tables of JSON rows into typed synchronizers.
//
// A Backend synchronizes whole tables under an atomic compare-and-swap
// contract. Three backends exist: an in-process store (package memory), a
// Badger-backed KVBackend in this package, and a Raft-replicated store
// (package cluster). Bind adapts any of them to service.Synchronizer[T] for
// one table, and Engine adds snapshot export, import and recovery on top of
// the backend selected by Config.
package storage
