// Package cluster provides a Raft-replicated synchronization backend.
//
// Every commit is a Raft log entry applied by the FSM through the cas
// engine, so all nodes reach the same canonical table for the same log.
// Reads are served by the leader after a barrier, which makes them observe
// every commit acknowledged before the read started. Followers answer with
// domain.ErrNotLeader.
package cluster
