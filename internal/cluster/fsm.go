package cluster

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/storage/cas"
)

// LogEntryType defines the type of Raft log entry.
type LogEntryType uint8

const (
	// LogEntryCommit commits a table proposal.
	LogEntryCommit LogEntryType = 1
)

// LogEntry represents a Raft log entry.
type LogEntry struct {
	Type    LogEntryType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// CommitPayload is the payload of LogEntryCommit.
type CommitPayload struct {
	Table    string                        `json:"table"`
	Proposed domain.Table[json.RawMessage] `json:"proposed"`
}

// CommitResult is what Apply returns for a commit entry.
type CommitResult struct {
	Current domain.Table[json.RawMessage]
	Outcome cas.Outcome
}

// FSM holds one cas record per table.
type FSM struct {
	mu     sync.RWMutex
	tables map[string]cas.RawRecord
	engine cas.Engine[json.RawMessage]
	logger *slog.Logger
}

// NewFSM creates an empty FSM whose commits follow engine.
func NewFSM(engine cas.Engine[json.RawMessage], logger *slog.Logger) *FSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSM{
		tables: make(map[string]cas.RawRecord),
		engine: engine,
		logger: logger,
	}
}

// Apply applies a committed Raft log entry.
//
// Entries that cannot be decoded mean the log is corrupt or written by an
// incompatible version, and Apply panics rather than diverge from peers.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var entry LogEntry
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		f.logger.Error("FATAL: failed to unmarshal log entry - data corrupted",
			"error", err,
			"log_index", log.Index,
			"log_term", log.Term)
		panic(fmt.Sprintf("FSM.Apply: unmarshal failed at index=%d: %v", log.Index, err))
	}

	switch entry.Type {
	case LogEntryCommit:
		return f.applyCommit(log.Index, entry.Payload)
	default:
		f.logger.Error("FATAL: unknown log entry type",
			"type", entry.Type,
			"log_index", log.Index)
		panic(fmt.Sprintf("FSM.Apply: unknown log type %d at index=%d", entry.Type, log.Index))
	}
}

func (f *FSM) applyCommit(index uint64, payload json.RawMessage) CommitResult {
	var commit CommitPayload
	if err := json.Unmarshal(payload, &commit); err != nil {
		f.logger.Error("FATAL: failed to unmarshal commit payload", "error", err, "log_index", index)
		panic(fmt.Sprintf("applyCommit: unmarshal failed at index=%d: %v", index, err))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	next, outcome := f.engine.Commit(f.tables[commit.Table], commit.Proposed)
	if outcome.Changed() {
		f.tables[commit.Table] = next
	}

	f.logger.Debug("table commit applied",
		"table", commit.Table,
		"log_index", index,
		"base_version", commit.Proposed.Version(),
		"version", next.Current.Version(),
		"outcome", outcome.String())

	return CommitResult{Current: next.Current, Outcome: outcome}
}

// Read returns the current table as applied on this node.
func (f *FSM) Read(table string) domain.Table[json.RawMessage] {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tables[table].Current
}

// Tables returns the sorted names of known tables.
func (f *FSM) Tables() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.tables))
	for name := range f.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot captures the FSM state for log compaction.
//
// Records are never modified in place, so copying the map is enough.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	tables := make(map[string]cas.RawRecord, len(f.tables))
	for k, v := range f.tables {
		tables[k] = v
	}
	return &fsmSnapshot{tables: tables}, nil
}

// Restore replaces the FSM state with a gzip-compressed snapshot.
func (f *FSM) Restore(r io.ReadCloser) error {
	defer r.Close()

	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzReader.Close()

	var state snapshotState
	if err := json.NewDecoder(gzReader).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if state.Tables == nil {
		state.Tables = make(map[string]cas.RawRecord)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = state.Tables

	f.logger.Info("fsm state restored from snapshot", "table_count", len(f.tables))
	return nil
}

type snapshotState struct {
	Tables map[string]cas.RawRecord `json:"tables"`
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	tables map[string]cas.RawRecord
}

// Persist writes the snapshot to the sink, gzip-compressed.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		gzWriter := gzip.NewWriter(sink)
		if err := json.NewEncoder(gzWriter).Encode(snapshotState{Tables: s.tables}); err != nil {
			gzWriter.Close()
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if err := gzWriter.Close(); err != nil {
			return fmt.Errorf("close gzip writer: %w", err)
		}
		return nil
	}()

	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

// Release is called when the snapshot is no longer needed.
func (s *fsmSnapshot) Release() {}
