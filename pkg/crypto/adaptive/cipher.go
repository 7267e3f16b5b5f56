package adaptive

import (
	"errors"
	"runtime"
	"strings"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// ErrUnknownCipher is returned for an unsupported algorithm name.
var ErrUnknownCipher = errors.New("adaptive: unknown cipher type")

// Cipher provides authenticated encryption. Implementations are safe for
// concurrent use.
type Cipher interface {
	// Type returns the cipher type.
	Type() CipherType

	// Encrypt seals plaintext; the random nonce is prepended to the result.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt opens a value produced by Encrypt with the same additional data.
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)

	// NonceSize returns the nonce size in bytes.
	NonceSize() int

	// Overhead returns the authentication tag size in bytes.
	Overhead() int
}

// New creates a cipher with the given key, picking the algorithm for the
// current hardware.
func New(key []byte) (Cipher, error) {
	if hasAESNI() {
		return NewAESGCM(key)
	}
	return NewChaCha20(key)
}

// NewWithType creates a cipher of the specified type. The empty type picks
// one like New.
func NewWithType(key []byte, cipherType CipherType) (Cipher, error) {
	switch cipherType {
	case "":
		return New(key)
	case CipherAESGCM:
		return NewAESGCM(key)
	case CipherChaCha20:
		return NewChaCha20(key)
	default:
		return nil, errors.Join(ErrUnknownCipher, errors.New(string(cipherType)))
	}
}

// ParseCipherType normalizes a configured algorithm name. "auto" and the
// empty string both mean hardware selection.
func ParseCipherType(s string) (CipherType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "aes-gcm", "aes-256-gcm":
		return CipherAESGCM, nil
	case "chacha20-poly1305", "chacha20":
		return CipherChaCha20, nil
	default:
		return "", errors.Join(ErrUnknownCipher, errors.New(s))
	}
}

// hasAESNI reports whether Go's crypto/aes runs hardware accelerated here.
func hasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}
