// Package adaptive provides authenticated encryption for stored tables and
// snapshot files.
//
// It selects the cipher based on hardware capabilities:
//
//   - AES-256-GCM when hardware AES support is available
//   - ChaCha20-Poly1305 otherwise
//
// Keys come from configuration in "hex:" or "base64:" form (ParseKey), from a
// passphrase stretched with Argon2id (DeriveKey), or from a master key split
// into purpose-bound subkeys with HKDF (Subkey).
//
// Usage:
//
//	key, err := adaptive.ParseKey(cfg.EncryptionKey)
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
package adaptive
