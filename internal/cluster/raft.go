package cluster

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Peer is a voting member used when bootstrapping.
type Peer struct {
	ID   string
	Addr string
}

// RaftConfig configures the Raft node.
type RaftConfig struct {
	// NodeID is the unique node identifier.
	NodeID string

	// BindAddr is the address to bind for Raft communication.
	BindAddr string

	// DataDir is the directory for Raft data. Unused with InMemory.
	DataDir string

	// InMemory keeps the log, stable store and snapshots in memory.
	InMemory bool

	// Transport overrides the TCP transport, for in-process clusters.
	Transport raft.Transport

	// Bootstrap indicates if this node forms the initial configuration.
	Bootstrap bool

	// Peers are the other voters of the initial configuration.
	Peers []Peer

	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	CommitTimeout      time.Duration
	LeaderLeaseTimeout time.Duration

	SnapshotThreshold uint64
	SnapshotRetain    int

	// Logger for logging.
	Logger *slog.Logger
}

// DefaultRaftConfig returns timings tuned for a LAN.
func DefaultRaftConfig(nodeID, bindAddr, dataDir string) RaftConfig {
	return RaftConfig{
		NodeID:             nodeID,
		BindAddr:           bindAddr,
		DataDir:            dataDir,
		HeartbeatTimeout:   1000 * time.Millisecond,
		ElectionTimeout:    1000 * time.Millisecond,
		CommitTimeout:      50 * time.Millisecond,
		LeaderLeaseTimeout: 500 * time.Millisecond,
		SnapshotThreshold:  8192,
		SnapshotRetain:     3,
	}
}

// RaftNode wraps hashicorp/raft with the stores this backend uses.
type RaftNode struct {
	raft      *raft.Raft
	transport raft.Transport
	logger    *slog.Logger

	logStore    raft.LogStore
	stableStore raft.StableStore

	leaderCh chan bool
}

// NewRaftNode creates a new Raft node running fsm.
func NewRaftNode(cfg RaftConfig, fsm raft.FSM) (*RaftNode, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("raft: node_id is required")
	}
	if cfg.DataDir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("raft: data_dir is required")
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.Logger = &raftHCLogger{logger: cfg.Logger}
	if cfg.HeartbeatTimeout > 0 {
		raftConfig.HeartbeatTimeout = cfg.HeartbeatTimeout
	}
	if cfg.ElectionTimeout > 0 {
		raftConfig.ElectionTimeout = cfg.ElectionTimeout
	}
	if cfg.CommitTimeout > 0 {
		raftConfig.CommitTimeout = cfg.CommitTimeout
	}
	if cfg.LeaderLeaseTimeout > 0 {
		raftConfig.LeaderLeaseTimeout = cfg.LeaderLeaseTimeout
	}
	if cfg.SnapshotThreshold > 0 {
		raftConfig.SnapshotThreshold = cfg.SnapshotThreshold
	}
	if cfg.SnapshotRetain <= 0 {
		cfg.SnapshotRetain = 3
	}

	var (
		transport     = cfg.Transport
		logStore      raft.LogStore
		stableStore   raft.StableStore
		snapshotStore raft.SnapshotStore
		err           error
	)

	if transport == nil {
		addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
		if err != nil {
			return nil, fmt.Errorf("resolve bind addr: %w", err)
		}
		transport, err = raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, io.Discard)
		if err != nil {
			return nil, fmt.Errorf("create transport: %w", err)
		}
	}

	if cfg.InMemory {
		logStore = raft.NewInmemStore()
		stableStore = raft.NewInmemStore()
		snapshotStore = raft.NewInmemSnapshotStore()
	} else {
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			closeTransport(transport)
			return nil, fmt.Errorf("create data dir: %w", err)
		}

		bolt, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft.db"))
		if err != nil {
			closeTransport(transport)
			return nil, fmt.Errorf("create log store: %w", err)
		}
		logStore, stableStore = bolt, bolt

		snapshotStore, err = raft.NewFileSnapshotStore(cfg.DataDir, cfg.SnapshotRetain, io.Discard)
		if err != nil {
			bolt.Close()
			closeTransport(transport)
			return nil, fmt.Errorf("create snapshot store: %w", err)
		}
	}

	leaderCh := make(chan bool, 10)
	raftConfig.NotifyCh = leaderCh

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		closeStore(logStore)
		closeTransport(transport)
		return nil, fmt.Errorf("create raft: %w", err)
	}

	node := &RaftNode{
		raft:        r,
		transport:   transport,
		logger:      cfg.Logger,
		logStore:    logStore,
		stableStore: stableStore,
		leaderCh:    leaderCh,
	}

	if cfg.Bootstrap {
		servers := []raft.Server{{
			ID:      raft.ServerID(cfg.NodeID),
			Address: transport.LocalAddr(),
		}}
		for _, p := range cfg.Peers {
			servers = append(servers, raft.Server{
				ID:      raft.ServerID(p.ID),
				Address: raft.ServerAddress(p.Addr),
			})
		}

		hasState, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
		if err != nil {
			node.Close()
			return nil, fmt.Errorf("inspect raft state: %w", err)
		}
		if !hasState {
			f := r.BootstrapCluster(raft.Configuration{Servers: servers})
			if err := f.Error(); err != nil {
				node.Close()
				return nil, fmt.Errorf("bootstrap cluster: %w", err)
			}
			cfg.Logger.Info("raft cluster bootstrapped",
				"node_id", cfg.NodeID,
				"voters", len(servers))
		}
	}

	cfg.Logger.Info("raft node created",
		"node_id", cfg.NodeID,
		"addr", string(transport.LocalAddr()),
		"in_memory", cfg.InMemory,
		"bootstrap", cfg.Bootstrap)

	return node, nil
}

// Apply submits data to the log and waits for the FSM response.
func (n *RaftNode) Apply(data []byte, timeout time.Duration) (interface{}, error) {
	f := n.raft.Apply(data, timeout)
	if err := f.Error(); err != nil {
		return nil, err
	}
	return f.Response(), nil
}

// Barrier waits until every preceding log entry is applied to the FSM.
func (n *RaftNode) Barrier(timeout time.Duration) error {
	return n.raft.Barrier(timeout).Error()
}

// IsLeader returns true if this node is the Raft leader.
func (n *RaftNode) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// Leader returns the current leader address.
func (n *RaftNode) Leader() string {
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// LeaderID returns the current leader ID.
func (n *RaftNode) LeaderID() string {
	_, id := n.raft.LeaderWithID()
	return string(id)
}

// WaitForLeader blocks until the cluster has elected a leader.
func (n *RaftNode) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n.LeaderID() != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AddVoter adds a voting member to the Raft cluster.
func (n *RaftNode) AddVoter(nodeID, addr string, timeout time.Duration) error {
	f := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, timeout)
	if err := f.Error(); err != nil {
		return fmt.Errorf("add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a server from the Raft cluster.
func (n *RaftNode) RemoveServer(nodeID string, timeout time.Duration) error {
	f := n.raft.RemoveServer(raft.ServerID(nodeID), 0, timeout)
	if err := f.Error(); err != nil {
		return fmt.Errorf("remove server: %w", err)
	}
	return nil
}

// Snapshot triggers a snapshot.
func (n *RaftNode) Snapshot() error {
	if err := n.raft.Snapshot().Error(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// LeaderCh returns a channel that notifies on leader changes.
func (n *RaftNode) LeaderCh() <-chan bool {
	return n.leaderCh
}

// Stats returns Raft statistics.
func (n *RaftNode) Stats() map[string]string {
	return n.raft.Stats()
}

// Close gracefully shuts down the Raft node.
func (n *RaftNode) Close() error {
	n.logger.Info("shutting down raft node")

	if err := n.raft.Shutdown().Error(); err != nil {
		n.logger.Error("raft shutdown failed", "error", err)
	}
	closeStore(n.logStore)
	closeTransport(n.transport)

	n.logger.Info("raft node shutdown complete")
	return nil
}

func closeStore(s raft.LogStore) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}

func closeTransport(t raft.Transport) {
	if c, ok := t.(raft.WithClose); ok {
		_ = c.Close()
	}
}

// raftHCLogger adapts slog.Logger to hashicorp/go-hclog.Logger interface.
type raftHCLogger struct {
	logger *slog.Logger
	name   string
	args   []any
}

func (l *raftHCLogger) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		l.Debug(msg, args...)
	case hclog.Warn:
		l.Warn(msg, args...)
	case hclog.Error:
		l.Error(msg, args...)
	default:
		l.Info(msg, args...)
	}
}

func (l *raftHCLogger) emit(level slog.Level, msg string, args []any) {
	all := make([]any, 0, len(l.args)+len(args)+2)
	if l.name != "" {
		all = append(all, "component", l.name)
	}
	all = append(all, l.args...)
	all = append(all, args...)
	l.logger.Log(context.Background(), level, msg, all...)
}

func (l *raftHCLogger) Trace(msg string, args ...any) { l.emit(slog.LevelDebug, msg, args) }
func (l *raftHCLogger) Debug(msg string, args ...any) { l.emit(slog.LevelDebug, msg, args) }
func (l *raftHCLogger) Info(msg string, args ...any)  { l.emit(slog.LevelInfo, msg, args) }
func (l *raftHCLogger) Warn(msg string, args ...any)  { l.emit(slog.LevelWarn, msg, args) }
func (l *raftHCLogger) Error(msg string, args ...any) { l.emit(slog.LevelError, msg, args) }

func (l *raftHCLogger) enabled(level slog.Level) bool {
	return l.logger.Enabled(context.Background(), level)
}

func (l *raftHCLogger) IsTrace() bool { return false }
func (l *raftHCLogger) IsDebug() bool { return l.enabled(slog.LevelDebug) }
func (l *raftHCLogger) IsInfo() bool  { return l.enabled(slog.LevelInfo) }
func (l *raftHCLogger) IsWarn() bool  { return l.enabled(slog.LevelWarn) }
func (l *raftHCLogger) IsError() bool { return l.enabled(slog.LevelError) }

func (l *raftHCLogger) ImpliedArgs() []any { return l.args }

func (l *raftHCLogger) With(args ...any) hclog.Logger {
	return &raftHCLogger{logger: l.logger, name: l.name, args: append(append([]any{}, l.args...), args...)}
}

func (l *raftHCLogger) Name() string { return l.name }

func (l *raftHCLogger) Named(name string) hclog.Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return &raftHCLogger{logger: l.logger, name: name, args: l.args}
}

func (l *raftHCLogger) ResetNamed(name string) hclog.Logger {
	return &raftHCLogger{logger: l.logger, name: name, args: l.args}
}

func (l *raftHCLogger) SetLevel(hclog.Level) {}

func (l *raftHCLogger) GetLevel() hclog.Level {
	switch {
	case l.enabled(slog.LevelDebug):
		return hclog.Debug
	case l.enabled(slog.LevelInfo):
		return hclog.Info
	case l.enabled(slog.LevelWarn):
		return hclog.Warn
	default:
		return hclog.Error
	}
}

func (l *raftHCLogger) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return slog.NewLogLogger(l.logger.Handler(), slog.LevelInfo)
}

func (l *raftHCLogger) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return l.StandardLogger(opts).Writer()
}
