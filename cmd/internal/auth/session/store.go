package session

import (
	"context"
	"net"
	"time"
)

// Revocation reasons stored on keyline.sessions.revoked_reason.
const (
	// ReasonRotation marks a row retired by refresh rotation.
	ReasonRotation = "rotation"
	// ReasonLogout marks a single-device logout.
	ReasonLogout = "logout"
	// ReasonLogoutAll marks an all-devices revocation.
	ReasonLogoutAll = "logout_all"
	// ReasonManual marks an explicit per-session revoke from the session list.
	ReasonManual = "manual"
	// ReasonExpirySweep marks rows revoked by the background sweeper after expiry.
	ReasonExpirySweep = "expiry_sweep"
)

// Device describes the client device that owns a session.
// Label is a best-effort display string ("Chrome on macOS"), not a
// security boundary.
type Device struct {
	Label     string
	UserAgent string
	IP        net.IP
}

// Row mirrors the keyline.sessions row used by the session subsystem.
type Row struct {
	ID               string
	AccountID        string
	RefreshTokenHash string

	RememberMe  bool
	DeviceLabel string
	UserAgent   *string
	IP          *net.IP

	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time

	RevokedAt           *time.Time
	RevokedReason       *string
	ReplacedBySessionID *string
}

// RotateParams carries everything the store needs to retire a presented
// refresh secret and mint its successor in one atomic step.
type RotateParams struct {
	// PresentedHash is the storage digest of the presented secret.
	PresentedHash string
	// SuccessorHash is the storage digest of the freshly minted secret.
	SuccessorHash string
	// Device context recorded on the successor row.
	Device Device
	// TTL / TTLRemember select the successor lifetime based on the retired
	// row's persisted remember_me class.
	TTL         time.Duration
	TTLRemember time.Duration
}

// RotateOutcome reports both ends of a completed rotation.
type RotateOutcome struct {
	Old Row
	New Row
}

// Store abstracts persistence for session state.
//
// Rotate must be atomic: under N concurrent calls with the same
// PresentedHash exactly one succeeds and the rest observe the revoked row.
type Store interface {
	// Create inserts a new live session row and returns its ULID.
	Create(ctx context.Context, now time.Time, accountID string, dev Device, refreshHash string, expiresAt time.Time, rememberMe bool) (sessionID string, err error)

	// GetByRefreshHash loads a session row by refresh secret hash.
	// Missing -> ErrSessionNotFound.
	GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error)

	// Rotate retires the presented row and creates its successor in one
	// atomic step. Revoked row -> ErrTokenRevoked. Expired row is deleted
	// as a housekeeping side effect -> ErrTokenExpired.
	Rotate(ctx context.Context, now time.Time, p RotateParams) (RotateOutcome, error)

	// Revoke revokes a single session (idempotent; first reason wins).
	Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error

	// RevokeOwned revokes a session only when owned by accountID.
	// Returns false when no live row matched (missing or foreign).
	RevokeOwned(ctx context.Context, now time.Time, accountID, sessionID, reason string) (bool, error)

	// RevokeAllForAccount revokes every non-revoked session of an account.
	RevokeAllForAccount(ctx context.Context, now time.Time, accountID, reason string) (int64, error)

	// RevokeOthers revokes every non-revoked session of an account except
	// keepSessionID, returning the revoked count.
	RevokeOthers(ctx context.Context, now time.Time, accountID, keepSessionID, reason string) (int64, error)

	// ListActive returns non-revoked, non-expired sessions, most recently
	// used first.
	ListActive(ctx context.Context, accountID string, now time.Time) ([]Row, error)
}
