// Package apikey issues the opaque credentials external products present to
// the validation endpoint.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefix marks every key issued by this service.
const Prefix = "byk_"

// keyBytes of entropy per key; encodes to 43 url-safe characters.
const keyBytes = 32

// displayLen is how much of the raw key is stored in clear for masked display.
const displayLen = len(Prefix) + 8

// Key is a freshly issued credential. Raw is shown to the owner once per
// issue and never logged.
type Key struct {
	Raw    string
	Hash   string
	Prefix string
}

// Issue generates a new random key.
func Issue() (*Key, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate random bytes: %w", err)
	}
	raw := Prefix + base64.RawURLEncoding.EncodeToString(b)
	return &Key{Raw: raw, Hash: Hash(raw), Prefix: raw[:displayLen]}, nil
}

// Hash returns the SHA-256 hex digest used to look a key up.
func Hash(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// WellFormed rejects input that cannot be a key before it reaches the store.
func WellFormed(raw string) bool {
	if !strings.HasPrefix(raw, Prefix) {
		return false
	}
	body := raw[len(Prefix):]
	if len(body) != base64.RawURLEncoding.EncodedLen(keyBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil
}

// Mask renders a stored display prefix for listing screens.
func Mask(prefix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + "…"
}
