package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the standard GCM nonce length.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

// ErrAuthentication is returned when GCM tag verification fails. The check is
// constant-time; no information about where the mismatch occurred leaks.
var ErrAuthentication = errors.New("message authentication failed")

// Encrypt seals plaintext with AES-256-GCM under the given 32-byte key.
// A fresh random nonce is generated per call and never reused for a key.
// The authentication tag is returned separately from the ciphertext to match
// the persisted share layout.
func Encrypt(plaintext, key []byte) (ciphertext, nonce, tag []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce, err = RandomBytes(NonceSize)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ciphertext = sealed[:len(sealed)-TagSize]
	tag = sealed[len(sealed)-TagSize:]
	return ciphertext, nonce, tag, nil
}

// Decrypt opens an AES-256-GCM sealed message. Returns ErrAuthentication if
// the tag does not verify, with no partial plaintext.
func Decrypt(ciphertext, nonce, tag, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("invalid tag length %d", len(tag))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
