package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"keyline/cmd/security/token"
)

// Directory resolves the account view embedded in access tokens.
// Rotation needs it because the successor access token carries email and
// admin claims the session row does not store.
type Directory interface {
	AccountInfo(ctx context.Context, accountID string) (AccountInfo, error)
}

// Service implements the high-level session operations for Keyline.
//
// It issues the dual-token pair (access + refresh), rotates refresh
// tokens single-use, validates access tokens statelessly, and supports
// per-session and per-account revocation.
type Service struct {
	cfg    Config
	store  Store
	tokens TokenManager
	hasher *token.Hasher
	dir    Directory
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID    string
	AccountID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
	RememberMe   bool
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, tokens TokenManager, hasher *token.Hasher, dir Directory) *Service {
	return &Service{cfg: cfg, store: store, tokens: tokens, hasher: hasher, dir: dir}
}

func (s *Service) refreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.cfg.RefreshTTLRemember
	}
	return s.cfg.RefreshTTL
}

// Issue creates a new session for an authenticated account and returns
// fresh tokens. The refresh secret is opaque random material; only its
// hash is persisted.
func (s *Service) Issue(ctx context.Context, now time.Time, acct AccountInfo, dev Device, rememberMe bool) (Issued, error) {
	secret, secretHash, err := newOpaqueSecret(s.cfg.RefreshTokenBytes, s.hasher)
	if err != nil {
		return Issued{}, err
	}

	refreshExp := now.Add(s.refreshTTL(rememberMe))

	sessionID, err := s.store.Create(ctx, now, acct.ID, dev, secretHash, refreshExp, rememberMe)
	if err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.IssueAccess(acct, sessionID, now)
	if err != nil {
		return Issued{}, err
	}

	refreshToken, err := s.tokens.IssueRefresh(secret, now, refreshExp)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    sessionID,
		AccountID:    acct.ID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
		RememberMe:   rememberMe,
	}, nil
}

// VerifyAccess validates an access token by signature and expiry alone.
// No store lookup happens here: revocation takes effect at the next
// refresh, not mid-window.
func (s *Service) VerifyAccess(accessToken string, now time.Time) (AccessClaims, error) {
	return s.tokens.VerifyAccess(accessToken, now)
}

// Rotate exchanges a presented refresh token for a fresh token pair.
//
// The presented secret is single-use: the store retires its row and
// mints the successor atomically, so under concurrent presentations
// exactly one caller wins. A revoked row fails with ErrTokenRevoked
// whether it was retired by rotation or by logout.
func (s *Service) Rotate(ctx context.Context, now time.Time, refreshToken string, dev Device) (Issued, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > 4096 {
		return Issued{}, ErrTokenMalformed
	}

	secret, err := s.tokens.VerifyRefresh(refreshToken, now)
	if err != nil {
		return Issued{}, err
	}

	newSecret, newSecretHash, err := newOpaqueSecret(s.cfg.RefreshTokenBytes, s.hasher)
	if err != nil {
		return Issued{}, err
	}

	outcome, err := s.store.Rotate(ctx, now, RotateParams{
		PresentedHash: s.hasher.Hash(secret),
		SuccessorHash: newSecretHash,
		Device:        dev,
		TTL:           s.cfg.RefreshTTL,
		TTLRemember:   s.cfg.RefreshTTLRemember,
	})
	if err != nil {
		return Issued{}, err
	}

	acct, err := s.dir.AccountInfo(ctx, outcome.New.AccountID)
	if err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.IssueAccess(acct, outcome.New.ID, now)
	if err != nil {
		return Issued{}, err
	}

	newRefreshToken, err := s.tokens.IssueRefresh(newSecret, now, outcome.New.ExpiresAt)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    outcome.New.ID,
		AccountID:    outcome.New.AccountID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newRefreshToken,
		RefreshExp:   outcome.New.ExpiresAt,
		RememberMe:   outcome.New.RememberMe,
	}, nil
}

// Logout revokes the session behind a presented refresh token. With
// everywhere set, every live session of the owning account goes.
//
// Token-validity failures (malformed, expired, unknown, already revoked)
// are swallowed: logout succeeds from the caller's perspective whether
// or not the token still mapped to a live row. Storage errors propagate.
func (s *Service) Logout(ctx context.Context, now time.Time, refreshToken string, everywhere bool) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > 4096 {
		return nil
	}

	secret, err := s.tokens.VerifyRefresh(refreshToken, now)
	if err != nil {
		return nil
	}

	row, err := s.store.GetByRefreshHash(ctx, s.hasher.Hash(secret))
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if everywhere {
		_, err := s.store.RevokeAllForAccount(ctx, now, row.AccountID, ReasonLogoutAll)
		return err
	}
	return s.store.Revoke(ctx, now, row.ID, ReasonLogout)
}

// LogoutEverywhere revokes all live sessions of an account and returns
// the revoked count.
func (s *Service) LogoutEverywhere(ctx context.Context, now time.Time, accountID string) (int64, error) {
	return s.store.RevokeAllForAccount(ctx, now, accountID, ReasonLogoutAll)
}

// ListActive returns the account's live sessions, most recently used first.
func (s *Service) ListActive(ctx context.Context, accountID string, now time.Time) ([]Row, error) {
	return s.store.ListActive(ctx, accountID, now)
}

// RevokeOwned revokes one of the account's own sessions. A session id
// that is missing or belongs to another account fails identically with
// ErrSessionNotFound.
func (s *Service) RevokeOwned(ctx context.Context, now time.Time, accountID, sessionID string) error {
	ok, err := s.store.RevokeOwned(ctx, now, accountID, sessionID, ReasonManual)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeOthers revokes every session of the account except the current
// one, returning the revoked count. The rows record logout_all, same as
// an all-devices logout.
func (s *Service) RevokeOthers(ctx context.Context, now time.Time, accountID, currentSessionID string) (int64, error) {
	return s.store.RevokeOthers(ctx, now, accountID, currentSessionID, ReasonLogoutAll)
}
