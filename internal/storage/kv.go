package storage

import (
	"context"
)

// KVEngine defines the interface for embedded key-value storage.
//
// Implementations must be safe for concurrent use and durable across
// restarts. KVBackend stores one record per table on top of it.
type KVEngine interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Scan iterates over keys with a given prefix.
	// Callback returns false to stop iteration.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Update runs a read-modify-write of one key atomically. fn receives the
	// current value (nil when absent) and returns the value to store; a nil
	// result leaves the key untouched. fn may run more than once when the
	// engine retries after a write conflict.
	Update(ctx context.Context, key []byte, fn func(current []byte) ([]byte, error)) error

	// GC triggers garbage collection (for LSM-based engines like Badger).
	// Returns bytes reclaimed.
	GC(ctx context.Context) (uint64, error)

	// Stats returns storage statistics (size, keys count, etc.).
	Stats(ctx context.Context) (*KVStats, error)

	// Close gracefully shuts down the KV engine.
	Close() error
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LSMSize is the LSM tree size (for Badger/Pebble).
	LSMSize uint64

	// ValueLogSize is the value log size (for Badger).
	ValueLogSize uint64

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64

	// GCBytesReclaimed is the total bytes reclaimed by GC.
	GCBytesReclaimed uint64
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	// Dir is the storage directory.
	Dir string

	// InMemory runs Badger without touching disk. Dir is ignored.
	InMemory bool

	Badger BadgerConfig
}

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic GC runs.
	// Default: 10m
	GCInterval string `koanf:"gc_interval" json:"gc_interval"`

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5 (run GC when 50% of data is stale)
	GCThreshold float64 `koanf:"gc_threshold" json:"gc_threshold"`

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64 `koanf:"cache_size" json:"cache_size"`

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64 `koanf:"value_log_file_size" json:"value_log_file_size"`

	NumMemtables            int `koanf:"num_memtables" json:"num_memtables"`
	NumLevelZeroTables      int `koanf:"num_level_zero_tables" json:"num_level_zero_tables"`
	NumLevelZeroTablesStall int `koanf:"num_level_zero_tables_stall" json:"num_level_zero_tables_stall"`

	// SyncWrites enables fsync after each write.
	SyncWrites bool `koanf:"sync_writes" json:"sync_writes"`

	// MaxRetries bounds Update retries on transaction conflicts.
	// Default: 8
	MaxRetries int `koanf:"max_retries" json:"max_retries"`
}

// DefaultKVConfig returns the default KV configuration.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:              "10m",
		GCThreshold:             0.5,
		CacheSize:               64 << 20,  // 64MB
		ValueLogFileSize:        256 << 20, // 256MB
		NumMemtables:            2,
		NumLevelZeroTables:      5,
		NumLevelZeroTablesStall: 10,
		SyncWrites:              true,
		MaxRetries:              8,
	}
}
