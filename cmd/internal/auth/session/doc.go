// Package session implements Keyline's session architecture.
//
// It provides a multi-device session model with single-use refresh-token
// rotation and per-session/per-account revocation.
//
// Access tokens are short-lived HS256 JWTs and are validated statelessly:
// signature and expiry only, never a store lookup. Refresh tokens are
// signed wrappers around an opaque random secret; only the hash of the
// secret is stored in Postgres (HMAC-SHA256 when KEYLINE_TOKEN_HMAC_KEY
// is set; otherwise SHA-256 for dev).
//
// Transport (HTTP) integration is intentionally out of scope here.
package session
