package adaptive

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of every derived key.
	KeySize = 32

	// SaltSize is the salt length used for passphrase derivation.
	SaltSize = 16

	// MinKeyLength is the shortest raw key accepted from configuration.
	MinKeyLength = 16

	// MinPassphraseLength is the shortest passphrase accepted.
	MinPassphraseLength = 8

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// Key errors.
var (
	ErrKeyTooShort       = errors.New("adaptive: encryption key too short (minimum 16 bytes)")
	ErrPassphraseTooWeak = errors.New("adaptive: passphrase too weak (minimum 8 characters)")
	ErrKeyEncoding       = errors.New(`adaptive: key must start with "hex:" or "base64:"`)
)

// ParseKey decodes key material written as "hex:<digits>" or
// "base64:<std encoding>".
func ParseKey(s string) ([]byte, error) {
	var (
		key []byte
		err error
	)
	switch {
	case strings.HasPrefix(s, "hex:"):
		key, err = hex.DecodeString(strings.TrimPrefix(s, "hex:"))
	case strings.HasPrefix(s, "base64:"):
		key, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(s, "base64:"))
	default:
		return nil, ErrKeyEncoding
	}
	if err != nil {
		return nil, fmt.Errorf("adaptive: decode key: %w", err)
	}
	if len(key) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	return key, nil
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("adaptive: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches a passphrase into a KeySize key with Argon2id. The same
// passphrase and salt always give the same key.
func DeriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("adaptive: salt must be %d bytes", SaltSize)
	}
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, KeySize), nil
}

// Subkey derives a KeySize key bound to purpose from a master key with
// HKDF-SHA256, so one configured key can protect several kinds of data.
func Subkey(master []byte, purpose string) ([]byte, error) {
	if len(master) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("adaptive: derive subkey: %w", err)
	}
	return key, nil
}

// GenerateKey returns a random KeySize key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("adaptive: generate key: %w", err)
	}
	return key, nil
}

// Zero overwrites key material in place.
func Zero(key []byte) {
	clear(key)
}
