package config

import (
	"time"

	"github.com/yndnr/tablesync/internal/storage"
)

// Config is the root configuration for tablesync.
type Config struct {
	Storage  StorageSection  `koanf:"storage" json:"storage"`
	Raft     RaftSection     `koanf:"raft" json:"raft"`
	Reactive ReactiveSection `koanf:"reactive" json:"reactive"`
	Log      LogSection      `koanf:"log" json:"log"`
	Metrics  MetricsSection  `koanf:"metrics" json:"metrics"`
	Security SecuritySection `koanf:"security" json:"security"`
}

// StorageSection configures the backend behind every table.
type StorageSection struct {
	// Backend is one of memory, badger, sqlite or raft.
	Backend string `koanf:"backend" json:"backend" jsonschema:"enum=memory,enum=badger,enum=sqlite,enum=raft"`

	DataDir string `koanf:"data_dir" json:"data_dir"`

	// Policy is the conflict policy: reject, last-writer-wins or merge.
	Policy string `koanf:"policy" json:"policy"`

	// HistoryLimit is the number of superseded versions kept for merging.
	HistoryLimit int `koanf:"history_limit" json:"history_limit"`

	SnapshotKeep          int           `koanf:"snapshot_keep" json:"snapshot_keep"`
	SnapshotRetentionDays int           `koanf:"snapshot_retention_days" json:"snapshot_retention_days"`
	SnapshotInterval      time.Duration `koanf:"snapshot_interval" json:"snapshot_interval"`

	// RecoverOnOpen seeds empty tables from their latest snapshot.
	RecoverOnOpen bool `koanf:"recover_on_open" json:"recover_on_open"`

	// RateLimit caps synchronization calls per second per table. Zero
	// disables limiting.
	RateLimit float64 `koanf:"rate_limit" json:"rate_limit"`
	RateBurst int     `koanf:"rate_burst" json:"rate_burst"`

	Badger storage.BadgerConfig `koanf:"badger" json:"badger"`
	SQLite storage.SQLiteConfig `koanf:"sqlite" json:"sqlite"`
}

// RaftSection configures the replicated backend.
type RaftSection struct {
	// NodeID is the unique identifier for this node.
	// If empty, a random ID will be generated at startup.
	NodeID string `koanf:"node_id" json:"node_id"`

	// BindAddr is the Raft TCP bind address (e.g., "192.168.1.10:7946").
	BindAddr string `koanf:"bind_addr" json:"bind_addr"`

	// DataDir overrides <storage.data_dir>/raft.
	DataDir string `koanf:"data_dir" json:"data_dir"`

	// Bootstrap indicates if this node forms the initial configuration.
	Bootstrap bool `koanf:"bootstrap" json:"bootstrap"`

	// Peers lists the other voters as "id=host:port".
	Peers []string `koanf:"peers" json:"peers"`

	ApplyTimeout     time.Duration `koanf:"apply_timeout" json:"apply_timeout"`
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout" json:"heartbeat_timeout"`
	ElectionTimeout  time.Duration `koanf:"election_timeout" json:"election_timeout"`
}

// ReactiveSection configures reactive table services.
type ReactiveSection struct {
	// Optimistic installs proposals before they are confirmed.
	Optimistic bool `koanf:"optimistic" json:"optimistic"`

	// RefreshInterval is how often a watched table re-reads the backend.
	RefreshInterval time.Duration `koanf:"refresh_interval" json:"refresh_interval"`
}

// LogSection configures logging.
type LogSection struct {
	Level string `koanf:"level" json:"level"`
	// Format is json, text or console.
	Format string `koanf:"format" json:"format" jsonschema:"enum=json,enum=text,enum=console"`

	// File writes logs to a rotating file instead of standard error.
	File       string        `koanf:"file" json:"file"`
	MaxSizeMB  int           `koanf:"max_size_mb" json:"max_size_mb"`
	MaxBackups int           `koanf:"max_backups" json:"max_backups"`
	MaxAge     time.Duration `koanf:"max_age" json:"max_age"`
	Compress   bool          `koanf:"compress" json:"compress"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	// Addr serves /metrics when set (e.g., "127.0.0.1:9100").
	Addr string `koanf:"addr" json:"addr"`
}

// SecuritySection configures encryption at rest.
type SecuritySection struct {
	// EncryptionKey is the master key as "hex:..." or "base64:...".
	EncryptionKey string `koanf:"encryption_key" json:"encryption_key"`

	// Cipher selects aes-gcm, chacha20-poly1305 or auto.
	Cipher string `koanf:"cipher" json:"cipher"`

	// SnapshotPassphrase protects exported snapshots so they can be
	// imported on nodes holding a different key.
	SnapshotPassphrase string `koanf:"snapshot_passphrase" json:"snapshot_passphrase"`

	// RequireEncrypted refuses to import plaintext snapshots.
	RequireEncrypted bool `koanf:"require_encrypted" json:"require_encrypted"`
}
