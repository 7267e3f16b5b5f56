package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/tablesync/internal/cluster"
	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/storage/cas"
	"github.com/yndnr/tablesync/internal/storage/memory"
	"github.com/yndnr/tablesync/internal/storage/snapshot"
	"github.com/yndnr/tablesync/pkg/crypto/adaptive"
)

// Backend kinds accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRaft   = "raft"
)

// Default directories below DataDir.
const (
	DefaultKVDir       = "kv"
	DefaultRaftDir     = "raft"
	DefaultSnapshotDir = "snapshots"
)

// Config configures the storage engine.
type Config struct {
	// Backend is one of memory, badger, sqlite or raft.
	Backend string

	// DataDir is the base directory for all storage files.
	DataDir string

	Policy       cas.Policy
	HistoryLimit int

	Badger BadgerConfig
	SQLite SQLiteConfig
	Raft   cluster.RaftConfig

	// ApplyTimeout bounds raft commits.
	ApplyTimeout time.Duration

	// Cipher encrypts records at rest in the badger and sqlite backends.
	Cipher adaptive.Cipher

	Snapshot snapshot.Config

	// SnapshotInterval exports every table periodically. Zero disables it.
	SnapshotInterval time.Duration

	// RecoverOnOpen seeds empty tables from their latest snapshot.
	RecoverOnOpen bool

	NodeID string

	Logger *slog.Logger

	// Metrics receives backend gauges when set.
	Metrics prometheus.Registerer
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		Backend:      BackendBadger,
		DataDir:      dataDir,
		HistoryLimit: cas.DefaultHistoryLimit,
		Badger:       DefaultBadgerConfig(),
		SQLite:       DefaultSQLiteConfig(),
		Raft:         cluster.DefaultRaftConfig("node-1", "127.0.0.1:7946", filepath.Join(dataDir, DefaultRaftDir)),
		ApplyTimeout: cluster.DefaultApplyTimeout,
		Snapshot:     snapshot.DefaultConfig(filepath.Join(dataDir, DefaultSnapshotDir)),
		Logger:       slog.Default(),
	}
}

// Engine is a Backend plus snapshot export and import.
type Engine struct {
	Backend

	cfg      Config
	snapshot *snapshot.Manager
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open creates the configured backend and snapshot manager.
//
// A raft backend is returned once a leader is known or ctx ends.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Snapshot.Dir == "" {
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("storage: data_dir is required")
		}
		cfg.Snapshot.Dir = filepath.Join(cfg.DataDir, DefaultSnapshotDir)
	}
	if cfg.Snapshot.NodeID == "" {
		cfg.Snapshot.NodeID = cfg.NodeID
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	snapMgr, err := snapshot.NewManager(cfg.Snapshot)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("storage: create snapshot manager: %w", err)
	}

	e := &Engine{
		Backend:  backend,
		cfg:      cfg,
		snapshot: snapMgr,
		logger:   cfg.Logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if cfg.RecoverOnOpen {
		if err := e.Recover(ctx); err != nil {
			backend.Close()
			return nil, err
		}
	}

	if cfg.SnapshotInterval > 0 {
		go e.backgroundLoop()
	} else {
		close(e.doneCh)
	}

	cfg.Logger.Info("storage engine opened",
		"backend", cfg.Backend,
		"policy", cfg.Policy.String(),
		"snapshot_dir", cfg.Snapshot.Dir)

	return e, nil
}

func openBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return memory.New(
			memory.WithPolicy(cfg.Policy),
			memory.WithHistoryLimit(cfg.HistoryLimit),
			memory.WithLogger(cfg.Logger),
		), nil

	case BackendBadger:
		kvCfg := KVConfig{Dir: filepath.Join(cfg.DataDir, DefaultKVDir), Badger: cfg.Badger}
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("storage: data_dir is required for the badger backend")
		}
		kv, err := NewBadgerEngine(kvCfg, cfg.Logger.With("component", "badger"))
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		if cfg.Metrics != nil {
			kv.RegisterMetrics(cfg.Metrics)
		}
		return NewKVBackend(kv, KVBackendOptions{
			Policy:       cfg.Policy,
			HistoryLimit: cfg.HistoryLimit,
			Cipher:       cfg.Cipher,
			Logger:       cfg.Logger,
		}), nil

	case BackendSQLite:
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("storage: data_dir is required for the sqlite backend")
		}
		kv, err := NewSQLiteEngine(filepath.Join(cfg.DataDir, DefaultSQLiteFile), cfg.SQLite, cfg.Logger.With("component", "sqlite"))
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		return NewKVBackend(kv, KVBackendOptions{
			Policy:       cfg.Policy,
			HistoryLimit: cfg.HistoryLimit,
			Cipher:       cfg.Cipher,
			Logger:       cfg.Logger,
		}), nil

	case BackendRaft:
		rc := cfg.Raft
		if rc.NodeID == "" {
			rc.NodeID = cfg.NodeID
		}
		if rc.DataDir == "" && cfg.DataDir != "" {
			rc.DataDir = filepath.Join(cfg.DataDir, DefaultRaftDir)
		}
		store, err := cluster.Open(cluster.Config{
			Raft:         rc,
			Policy:       cfg.Policy,
			HistoryLimit: cfg.HistoryLimit,
			ApplyTimeout: cfg.ApplyTimeout,
			Logger:       cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := store.WaitForLeader(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("storage: wait for raft leader: %w", err)
		}
		return store, nil

	default:
		return nil, domain.ErrInvalidArgument.WithDetails("unknown backend " + cfg.Backend)
	}
}

// Snapshots returns the snapshot manager.
func (e *Engine) Snapshots() *snapshot.Manager {
	return e.snapshot
}

// Export writes a snapshot of the named table's canonical state.
func (e *Engine) Export(ctx context.Context, table string) (*snapshot.Info, error) {
	current, err := e.Sync(ctx, table, nil)
	if err != nil {
		return nil, err
	}
	info, err := e.snapshot.Create(table, current)
	if err != nil {
		return nil, fmt.Errorf("storage: export %s: %w", table, err)
	}

	e.logger.Info("snapshot created",
		"id", info.ID,
		"table", table,
		"table_version", info.TableVersion,
		"row_count", info.RowCount,
		"size_bytes", info.Size)
	return info, nil
}

// Import commits the rows of the snapshot at path as the next version of the
// table named in the snapshot, or of table when it is not empty.
func (e *Engine) Import(ctx context.Context, path, table string) (domain.Table[json.RawMessage], *snapshot.Info, error) {
	rows, info, err := e.snapshot.LoadFile(path)
	if err != nil {
		return domain.Table[json.RawMessage]{}, nil, fmt.Errorf("storage: import %s: %w", path, err)
	}
	if table == "" {
		table = info.Table
	}

	canonical, err := Restore(ctx, e.Backend, table, rows)
	if err != nil {
		return domain.Table[json.RawMessage]{}, info, err
	}

	e.logger.Info("snapshot imported",
		"id", info.ID,
		"table", table,
		"row_count", info.RowCount,
		"version", canonical.Version())
	return canonical, info, nil
}

// Recover seeds every table that is still empty from its latest snapshot.
func (e *Engine) Recover(ctx context.Context) error {
	startTime := time.Now()

	names, err := e.snapshot.Tables()
	if err != nil {
		return fmt.Errorf("storage: list snapshots: %w", err)
	}

	restored := 0
	for _, name := range names {
		current, err := e.Sync(ctx, name, nil)
		if err != nil {
			return err
		}
		if current.Version() != 0 {
			continue
		}

		rows, info, err := e.snapshot.Load(name)
		if errors.Is(err, snapshot.ErrNoSnapshots) {
			continue
		}
		if err != nil {
			return fmt.Errorf("storage: recover %s: %w", name, err)
		}
		if _, err := Restore(ctx, e.Backend, name, rows); err != nil {
			return err
		}
		restored++
		e.logger.Debug("table recovered", "table", name, "snapshot", info.ID)
	}

	e.logger.Info("storage recovery completed",
		"tables_restored", restored,
		"elapsed", time.Since(startTime))
	return nil
}

// TriggerSnapshot exports every table and prunes old snapshots.
func (e *Engine) TriggerSnapshot(ctx context.Context) ([]*snapshot.Info, error) {
	names, err := e.Tables(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*snapshot.Info, 0, len(names))
	for _, name := range names {
		info, err := e.Export(ctx, name)
		if err != nil {
			return infos, err
		}
		infos = append(infos, info)

		if err := e.snapshot.Prune(name); err != nil {
			e.logger.Warn("snapshot cleanup failed", "table", name, "error", err)
		}
	}
	return infos, nil
}

// RowCounts reports rows per table for backends that track them cheaply.
func (e *Engine) RowCounts() map[string]int {
	if rc, ok := e.Backend.(interface{ RowCounts() map[string]int }); ok {
		return rc.RowCounts()
	}
	return nil
}

func (e *Engine) backgroundLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := e.TriggerSnapshot(ctx); err != nil {
				e.logger.Error("auto snapshot failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// Close stops background snapshots and closes the backend.
func (e *Engine) Close() error {
	e.logger.Info("shutting down storage engine")

	close(e.stopCh)
	<-e.doneCh

	if err := e.Backend.Close(); err != nil {
		e.logger.Error("close backend failed", "error", err)
		return err
	}

	e.logger.Info("storage engine shutdown complete")
	return nil
}
