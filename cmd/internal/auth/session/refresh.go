package session

import (
	"crypto/rand"
	"encoding/base64"

	"keyline/cmd/security/token"
)

// newOpaqueSecret mints the random secret embedded in refresh wrappers.
// The plain secret goes to the client only; the server stores hashHex.
func newOpaqueSecret(nBytes int, h *token.Hasher) (plain string, hashHex string, err error) {
	if nBytes <= 0 {
		nBytes = 32
	}

	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}

	// URL-safe, no padding.
	plain = base64.RawURLEncoding.EncodeToString(b)

	hashHex = h.Hash(plain) // 64 hex chars

	return plain, hashHex, nil
}
