// Package token provides refresh-secret hashing primitives for Keyline.
//
// It is the single source of truth for refresh-secret hashing behavior.
//
// Design goals:
// - Default dev mode: SHA-256(secret) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(secret, key) when policy requires it.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Environment:
// - KEYLINE_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
