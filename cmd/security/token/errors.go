package token

import "errors"

// Key-policy sentinels returned by HMACKeyFromEnv. Startup validation
// matches on these to print an actionable message per cause.
var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
)
