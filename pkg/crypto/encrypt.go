// Package crypto seals small secrets, such as issued API keys, for storage.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrTampered is returned when a sealed value fails authentication, either
// because it was modified or because it is bound to different associated data.
var ErrTampered = errors.New("sealed value failed authentication")

// Sealer encrypts values with AES-256-GCM. Associated data binds a sealed
// value to its owner record so it cannot be copied onto another row.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a 32-byte key.
func NewSealer(key string) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext bound to aad and returns nonce||ciphertext as
// url-safe base64.
func (s *Sealer) Seal(plaintext, aad string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(aad))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. The same aad must be supplied.
func (s *Sealer) Open(sealed, aad string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}

	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return "", ErrTampered
	}

	plaintext, err := s.aead.Open(nil, raw[:n], raw[n:], []byte(aad))
	if err != nil {
		return "", ErrTampered
	}
	return string(plaintext), nil
}
