package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/raft"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/storage/cas"
)

// DefaultApplyTimeout bounds a commit or read barrier when the caller's
// context has no deadline.
const DefaultApplyTimeout = 10 * time.Second

// Config configures a replicated store.
type Config struct {
	Raft RaftConfig

	Policy       cas.Policy
	HistoryLimit int

	ApplyTimeout time.Duration

	Logger *slog.Logger
}

// Store is a synchronization backend replicated with Raft.
type Store struct {
	node         *RaftNode
	fsm          *FSM
	applyTimeout time.Duration
	logger       *slog.Logger
}

// Open starts a Raft node and returns the store served by it.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Raft.Logger == nil {
		cfg.Raft.Logger = cfg.Logger.With("component", "raft")
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = DefaultApplyTimeout
	}

	fsm := NewFSM(cas.RawEngine(cfg.Policy, cfg.HistoryLimit), cfg.Logger)
	node, err := NewRaftNode(cfg.Raft, fsm)
	if err != nil {
		return nil, err
	}

	return &Store{
		node:         node,
		fsm:          fsm,
		applyTimeout: cfg.ApplyTimeout,
		logger:       cfg.Logger,
	}, nil
}

// Node exposes the underlying Raft node for membership changes.
func (s *Store) Node() *RaftNode {
	return s.node
}

// Sync reads or commits the named table on the leader.
func (s *Store) Sync(ctx context.Context, table string, proposed *domain.Table[json.RawMessage]) (domain.Table[json.RawMessage], error) {
	var empty domain.Table[json.RawMessage]

	if err := ctx.Err(); err != nil {
		return empty, syncError(table, err)
	}
	if !s.node.IsLeader() {
		return empty, s.notLeader(table)
	}
	timeout := s.timeout(ctx)

	if proposed == nil {
		if err := s.node.Barrier(timeout); err != nil {
			return empty, s.translate(table, err)
		}
		return s.fsm.Read(table), nil
	}

	payload, err := json.Marshal(CommitPayload{Table: table, Proposed: *proposed})
	if err != nil {
		return empty, syncError(table, err)
	}
	data, err := json.Marshal(LogEntry{Type: LogEntryCommit, Payload: payload})
	if err != nil {
		return empty, syncError(table, err)
	}

	resp, err := s.node.Apply(data, timeout)
	if err != nil {
		return empty, s.translate(table, err)
	}
	result, ok := resp.(CommitResult)
	if !ok {
		return empty, syncError(table, fmt.Errorf("unexpected fsm response %T", resp))
	}
	return result.Current, nil
}

// Tables lists the tables known to this node's FSM.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	if s.node.IsLeader() {
		if err := s.node.Barrier(s.timeout(ctx)); err != nil {
			return nil, s.translate("", err)
		}
	}
	return s.fsm.Tables(), nil
}

// RowCounts reports the number of rows per table as applied on this node.
func (s *Store) RowCounts() map[string]int {
	counts := make(map[string]int)
	for _, name := range s.fsm.Tables() {
		counts[name] = s.fsm.Read(name).Len()
	}
	return counts
}

// WaitForLeader blocks until a leader is elected.
func (s *Store) WaitForLeader(ctx context.Context) error {
	return s.node.WaitForLeader(ctx)
}

// Close shuts the Raft node down.
func (s *Store) Close() error {
	return s.node.Close()
}

func (s *Store) timeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < s.applyTimeout {
			return max(d, time.Millisecond)
		}
	}
	return s.applyTimeout
}

func (s *Store) notLeader(table string) *domain.DomainError {
	details := "table: " + table
	if leader := s.node.LeaderID(); leader != "" {
		details += ", leader: " + leader
	}
	return domain.ErrNotLeader.WithDetails(details)
}

func (s *Store) translate(table string, err error) error {
	switch {
	case errors.Is(err, raft.ErrNotLeader), errors.Is(err, raft.ErrLeadershipLost):
		return s.notLeader(table).WithCause(err)
	default:
		return syncError(table, err)
	}
}

func syncError(table string, err error) error {
	return domain.ErrSyncFailed.WithDetails("table: " + table).WithCause(err)
}
