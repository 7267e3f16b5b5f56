package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/yndnr/tablesync/internal/storage"
	"github.com/yndnr/tablesync/internal/storage/cas"
	"github.com/yndnr/tablesync/pkg/crypto/adaptive"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if cfg.Storage.Backend == storage.BackendRaft {
		if err := verifyRaft(&cfg.Raft); err != nil {
			return err
		}
	}
	if err := verifyLog(&cfg.Log); err != nil {
		return err
	}
	return verifySecurity(&cfg.Security)
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case storage.BackendMemory, storage.BackendBadger, storage.BackendSQLite, storage.BackendRaft:
	default:
		return fmt.Errorf("storage.backend must be memory, badger, sqlite or raft, got %q", cfg.Backend)
	}

	if _, err := cas.ParsePolicy(cfg.Policy); err != nil {
		return fmt.Errorf("storage.policy: %w", err)
	}
	if cfg.HistoryLimit < 0 {
		return errors.New("storage.history_limit must not be negative")
	}
	if cfg.SnapshotKeep < 1 {
		return errors.New("storage.snapshot_keep must be at least 1")
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return errors.New("storage.rate_limit and storage.rate_burst must not be negative")
	}

	switch cfg.SQLite.Synchronous {
	case "off", "normal", "full", "extra":
	default:
		return fmt.Errorf("storage.sqlite.synchronous must be off, normal, full or extra, got %q", cfg.SQLite.Synchronous)
	}

	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if cfg.Backend != storage.BackendMemory {
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return fmt.Errorf("cannot create data directory: %w", err)
		}
	}
	return nil
}

func verifyRaft(cfg *RaftSection) error {
	if cfg.BindAddr == "" {
		return errors.New("raft.bind_addr is required")
	}
	if _, err := ParsePeers(cfg.Peers); err != nil {
		return err
	}
	if !cfg.Bootstrap && len(cfg.Peers) > 0 {
		return errors.New("raft.peers requires raft.bootstrap")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text", "console":
	default:
		return fmt.Errorf("log.format must be json, text or console, got %q", cfg.Format)
	}
	if cfg.MaxSizeMB < 0 || cfg.MaxBackups < 0 || cfg.MaxAge < 0 {
		return errors.New("log.max_size_mb, log.max_backups and log.max_age must not be negative")
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if _, err := adaptive.ParseCipherType(cfg.Cipher); err != nil {
		return fmt.Errorf("security.cipher: %w", err)
	}
	if cfg.EncryptionKey != "" {
		key, err := adaptive.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("security.encryption_key: %w", err)
		}
		adaptive.Zero(key)
	}
	if cfg.SnapshotPassphrase != "" && len(cfg.SnapshotPassphrase) < adaptive.MinPassphraseLength {
		return fmt.Errorf("security.snapshot_passphrase: %w", adaptive.ErrPassphraseTooWeak)
	}
	if cfg.RequireEncrypted && cfg.EncryptionKey == "" && cfg.SnapshotPassphrase == "" {
		return errors.New("security.require_encrypted needs an encryption_key or snapshot_passphrase")
	}
	return nil
}
