// Package identity implements Keyline's account foundation.
//
// It owns the account model, the Postgres account store, and credential
// verification with counter-based brute-force lockout. Password hashing
// is delegated to cmd/security/password.
//
// This package is intentionally dependency-light and security-first.
package identity
