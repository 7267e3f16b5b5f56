package config

import (
	"time"

	"github.com/yndnr/tablesync/internal/cluster"
	"github.com/yndnr/tablesync/internal/storage"
	"github.com/yndnr/tablesync/internal/storage/cas"
	"github.com/yndnr/tablesync/internal/storage/snapshot"
)

// Default configuration values.
const (
	DefaultBackend  = storage.BackendBadger
	DefaultDataDir  = "./data"
	DefaultPolicy   = "reject"
	DefaultRaftAddr = "127.0.0.1:7946"

	DefaultRefreshInterval = time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 3
)

// Default returns the default configuration.
func Default() *Config {
	raft := cluster.DefaultRaftConfig("", DefaultRaftAddr, "")
	return &Config{
		Storage: StorageSection{
			Backend:               DefaultBackend,
			DataDir:               DefaultDataDir,
			Policy:                DefaultPolicy,
			HistoryLimit:          cas.DefaultHistoryLimit,
			SnapshotKeep:          snapshot.DefaultRetentionCount,
			SnapshotRetentionDays: snapshot.DefaultRetentionDays,
			Badger:                storage.DefaultBadgerConfig(),
			SQLite:                storage.DefaultSQLiteConfig(),
		},
		Raft: RaftSection{
			BindAddr:         DefaultRaftAddr,
			ApplyTimeout:     cluster.DefaultApplyTimeout,
			HeartbeatTimeout: raft.HeartbeatTimeout,
			ElectionTimeout:  raft.ElectionTimeout,
		},
		Reactive: ReactiveSection{
			RefreshInterval: DefaultRefreshInterval,
		},
		Log: LogSection{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}
