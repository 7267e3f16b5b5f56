package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	sanitized.Raft.Peers = append([]string(nil), cfg.Raft.Peers...)

	if sanitized.Security.EncryptionKey != "" {
		sanitized.Security.EncryptionKey = maskSecret(sanitized.Security.EncryptionKey)
	}
	if sanitized.Security.SnapshotPassphrase != "" {
		sanitized.Security.SnapshotPassphrase = maskSecret(sanitized.Security.SnapshotPassphrase)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
