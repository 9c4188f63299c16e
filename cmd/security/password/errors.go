package password

import "errors"

// Policy and format sentinels. The HTTP layer maps the first three to
// 400 responses; ErrInvalidHash only ever surfaces server-side.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")
)
