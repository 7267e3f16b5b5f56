package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/yndnr/tablesync/internal/cluster"
	"github.com/yndnr/tablesync/internal/storage"
	"github.com/yndnr/tablesync/internal/storage/cas"
	"github.com/yndnr/tablesync/pkg/crypto/adaptive"
)

// Subkey purposes derived from security.encryption_key.
const (
	purposeKV       = "tablesync/kv"
	purposeSnapshot = "tablesync/snapshot"
)

// ToStorageConfig converts Config to storage.Config.
//
// This handles NodeID generation, peer parsing and key derivation. The
// badger records and the snapshot files use separate subkeys of the
// configured master key.
func ToStorageConfig(cfg *Config, logger *slog.Logger) (storage.Config, error) {
	if cfg == nil {
		return storage.Config{}, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := cas.ParsePolicy(cfg.Storage.Policy)
	if err != nil {
		return storage.Config{}, err
	}

	nodeID := cfg.Raft.NodeID
	if nodeID == "" {
		generated, err := generateNodeID()
		if err != nil {
			return storage.Config{}, fmt.Errorf("generate node ID: %w", err)
		}
		nodeID = generated
		logger.Info("generated node ID", "node_id", nodeID)
	}

	peers, err := ParsePeers(cfg.Raft.Peers)
	if err != nil {
		return storage.Config{}, err
	}

	sc := storage.DefaultConfig(cfg.Storage.DataDir)
	sc.Backend = cfg.Storage.Backend
	sc.Policy = policy
	sc.HistoryLimit = cfg.Storage.HistoryLimit
	sc.Badger = cfg.Storage.Badger
	sc.SQLite = cfg.Storage.SQLite
	sc.SnapshotInterval = cfg.Storage.SnapshotInterval
	sc.RecoverOnOpen = cfg.Storage.RecoverOnOpen
	sc.NodeID = nodeID
	sc.Logger = logger

	sc.Snapshot.RetentionCount = cfg.Storage.SnapshotKeep
	sc.Snapshot.RetentionDays = cfg.Storage.SnapshotRetentionDays
	sc.Snapshot.NodeID = nodeID
	sc.Snapshot.RequireEncrypted = cfg.Security.RequireEncrypted
	if cfg.Security.SnapshotPassphrase != "" {
		sc.Snapshot.Passphrase = []byte(cfg.Security.SnapshotPassphrase)
	}

	raftDir := cfg.Raft.DataDir
	if raftDir == "" {
		raftDir = filepath.Join(cfg.Storage.DataDir, storage.DefaultRaftDir)
	}
	sc.Raft = cluster.DefaultRaftConfig(nodeID, cfg.Raft.BindAddr, raftDir)
	sc.Raft.Bootstrap = cfg.Raft.Bootstrap
	sc.Raft.Peers = peers
	if cfg.Raft.HeartbeatTimeout > 0 {
		sc.Raft.HeartbeatTimeout = cfg.Raft.HeartbeatTimeout
	}
	if cfg.Raft.ElectionTimeout > 0 {
		sc.Raft.ElectionTimeout = cfg.Raft.ElectionTimeout
	}
	sc.Raft.Logger = logger.With("component", "raft")
	if cfg.Raft.ApplyTimeout > 0 {
		sc.ApplyTimeout = cfg.Raft.ApplyTimeout
	}

	if cfg.Security.EncryptionKey != "" {
		kvCipher, snapCipher, err := buildCiphers(&cfg.Security)
		if err != nil {
			return storage.Config{}, err
		}
		sc.Cipher = kvCipher
		sc.Snapshot.Cipher = snapCipher
	}

	return sc, nil
}

// ParsePeers parses "id=host:port" entries.
func ParsePeers(entries []string) ([]cluster.Peer, error) {
	peers := make([]cluster.Peer, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		id, addr, ok := strings.Cut(entry, "=")
		id, addr = strings.TrimSpace(id), strings.TrimSpace(addr)
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("raft.peers: %q is not id=host:port", entry)
		}
		if seen[id] {
			return nil, fmt.Errorf("raft.peers: duplicate id %q", id)
		}
		seen[id] = true
		peers = append(peers, cluster.Peer{ID: id, Addr: addr})
	}
	return peers, nil
}

func buildCiphers(sec *SecuritySection) (kv, snap adaptive.Cipher, err error) {
	cipherType, err := adaptive.ParseCipherType(sec.Cipher)
	if err != nil {
		return nil, nil, fmt.Errorf("security.cipher: %w", err)
	}
	master, err := adaptive.ParseKey(sec.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("security.encryption_key: %w", err)
	}
	defer adaptive.Zero(master)

	kv, err = subkeyCipher(master, purposeKV, cipherType)
	if err != nil {
		return nil, nil, err
	}
	snap, err = subkeyCipher(master, purposeSnapshot, cipherType)
	if err != nil {
		return nil, nil, err
	}
	return kv, snap, nil
}

func subkeyCipher(master []byte, purpose string, cipherType adaptive.CipherType) (adaptive.Cipher, error) {
	key, err := adaptive.Subkey(master, purpose)
	if err != nil {
		return nil, err
	}
	defer adaptive.Zero(key)
	c, err := adaptive.NewWithType(key, cipherType)
	if err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	return c, nil
}

// generateNodeID generates a unique node identifier.
//
// Format: tsnode-<16 hex chars> (e.g., "tsnode-a1b2c3d4e5f67890")
func generateNodeID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return "tsnode-" + hex.EncodeToString(buf), nil
}
