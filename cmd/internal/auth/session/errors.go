package session

import "errors"

var (
	// ErrTokenMalformed is returned when a token fails signature, issuer,
	// or shape checks (including a wrong "typ" discriminant).
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenExpired is returned when a token or its backing session row
	// is past expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked is returned when the backing session row has been
	// revoked. Rotation reuse and post-logout reuse are deliberately
	// indistinguishable.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrSessionNotFound is returned when a refresh secret or session id
	// does not match any row (foreign rows included).
	ErrSessionNotFound = errors.New("session not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
