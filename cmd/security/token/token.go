package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the refresh-secret HMAC key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "KEYLINE_TOKEN_HMAC_KEY"
)

// Hasher computes the server-side digest of refresh secrets.
// With a key it uses HMAC-SHA256; without one it falls back to plain
// SHA-256 (dev mode). Output is always a 64-char hex string.
type Hasher struct {
	key []byte
}

// NewHasher builds a Hasher. A nil/empty key selects the SHA-256 fallback.
func NewHasher(key []byte) *Hasher {
	if len(key) == 0 {
		return &Hasher{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Hasher{key: k}
}

// Hash returns the storage digest for a refresh secret.
func (h *Hasher) Hash(secret string) string {
	if h == nil || len(h.key) == 0 {
		return HashSHA256Hex(secret)
	}
	return HashHMACSHA256Hex(secret, h.key)
}

// HMACEnabled reports whether the hasher runs in keyed mode.
func (h *Hasher) HMACEnabled() bool { return h != nil && len(h.key) > 0 }

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HasherFromEnv builds a Hasher from KEYLINE_TOKEN_HMAC_KEY.
// Missing key yields a SHA-256 fallback hasher; policy enforcement
// (requiring HMAC in production) is the caller's job.
func HasherFromEnv() *Hasher {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return NewHasher(nil)
	}
	return NewHasher([]byte(raw))
}
