// Package crypto provides the authenticated-encryption primitives for
// credential storage: AES-256-GCM with context-bound additional data, and
// PBKDF2 key derivation from a root secret plus pepper.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/aegis-security/aegis/pkg/aegis_err"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// SealedBox holds the three stored parts of an encrypted secret. The AAD
// context is not stored; it is re-derived from record identity on open.
type SealedBox struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// Seal encrypts plaintext under key with a fresh random nonce, binding aad
// into the authentication tag. The tag is split from the ciphertext so the
// three parts can be stored in separate columns.
func Seal(plaintext, key, aad []byte) (*SealedBox, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d (want %d)", len(key), KeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - TagSize

	return &SealedBox{
		Ciphertext: sealed[:split],
		Nonce:      nonce,
		Tag:        sealed[split:],
	}, nil
}

// Open decrypts a SealedBox. Any tag mismatch (tampering, wrong key, wrong
// AAD context, corruption) surfaces as a decryption integrity error and is
// never silently swallowed.
func Open(box *SealedBox, key, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d (want %d)", len(key), KeySize)
	}
	if len(box.Nonce) != NonceSize {
		return nil, aegis_err.New(aegis_err.KindDecryptionIntegrity,
			"stored nonce has invalid length")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(box.Ciphertext)+len(box.Tag))
	sealed = append(sealed, box.Ciphertext...)
	sealed = append(sealed, box.Tag...)

	plaintext, err := gcm.Open(nil, box.Nonce, sealed, aad)
	if err != nil {
		return nil, aegis_err.Wrap(aegis_err.KindDecryptionIntegrity, err,
			"authentication tag mismatch")
	}
	return plaintext, nil
}
