package identity

import (
	"context"
	"time"
)

// Account is Keyline's canonical security principal.
// PasswordHash is the encoded argon2id string; it must never be serialized
// to clients or logs.
type Account struct {
	ID           string
	Email        string
	EmailNorm    string
	PasswordHash string

	Admin bool

	// Brute-force lockout state. FailedLoginAttempts counts consecutive
	// failed password checks; LockedUntil is set when the counter reaches
	// the configured threshold.
	FailedLoginAttempts int
	LockedUntil         *time.Time

	LastLoginAt    *time.Time
	LastActivityAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateAccountInput is the persistence-level insert request.
// The password is already hashed by the caller (Validator).
type CreateAccountInput struct {
	Email        string
	EmailNorm    string
	PasswordHash string
	Admin        bool
	Now          time.Time
}

// LockoutStatus is the admin-surface view of an account's lockout state.
type LockoutStatus struct {
	Email          string
	Locked         bool
	LockedUntil    *time.Time
	FailedAttempts int
}

// Store is the account persistence boundary.
type Store interface {
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)

	// GetByEmailNorm loads an account by normalized email. Missing -> ErrNotFound.
	GetByEmailNorm(ctx context.Context, emailNorm string) (Account, error)

	// GetByID loads an account by ULID. Missing -> ErrNotFound.
	GetByID(ctx context.Context, accountID string) (Account, error)

	// SetLoginState persists the failed-attempt counter and lockout window.
	// Called on every credential check, success or failure.
	SetLoginState(ctx context.Context, accountID string, attempts int, lockedUntil *time.Time, now time.Time) error

	// RecordLogin stamps last_login_at and last_activity_at.
	RecordLogin(ctx context.Context, accountID string, now time.Time) error

	// TouchActivity stamps last_activity_at only (refresh rotation path).
	TouchActivity(ctx context.Context, accountID string, now time.Time) error
}
