package snapshot

import (
	"errors"
	"fmt"

	"github.com/yndnr/tablesync/pkg/crypto/adaptive"
)

var (
	ErrEncrypted   = errors.New("snapshot: encrypted snapshot requires a key or passphrase")
	ErrUnencrypted = errors.New("snapshot: expected encrypted snapshot")
)

// sealer picks the cipher for a new snapshot. With a passphrase a fresh salt
// is drawn and recorded so the file can be opened without the node's key.
func (m *Manager) sealer() (adaptive.Cipher, []byte, error) {
	if len(m.cfg.Passphrase) > 0 {
		salt, err := adaptive.NewSalt()
		if err != nil {
			return nil, nil, err
		}
		c, err := m.passphraseCipher(salt, "")
		if err != nil {
			return nil, nil, err
		}
		return c, salt, nil
	}
	return m.cfg.Cipher, nil, nil
}

// opener returns the cipher that decrypts a snapshot with hdr.
func (m *Manager) opener(hdr header) (adaptive.Cipher, error) {
	if !hdr.Encrypted {
		if m.cfg.RequireEncrypted {
			return nil, ErrUnencrypted
		}
		return nil, nil
	}

	if len(hdr.Salt) > 0 {
		if len(m.cfg.Passphrase) == 0 {
			return nil, ErrEncrypted
		}
		return m.passphraseCipher(hdr.Salt, adaptive.CipherType(hdr.Cipher))
	}

	if m.cfg.Cipher == nil {
		return nil, ErrEncrypted
	}
	if hdr.Cipher != "" && m.cfg.Cipher.Type() != adaptive.CipherType(hdr.Cipher) {
		return nil, fmt.Errorf("snapshot: written with %s, configured %s", hdr.Cipher, m.cfg.Cipher.Type())
	}
	return m.cfg.Cipher, nil
}

func (m *Manager) passphraseCipher(salt []byte, typ adaptive.CipherType) (adaptive.Cipher, error) {
	key, err := adaptive.DeriveKey(m.cfg.Passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer adaptive.Zero(key)
	return adaptive.NewWithType(key, typ)
}
