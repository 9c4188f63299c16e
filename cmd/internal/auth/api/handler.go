// Package api is the HTTP boundary of the authentication backend:
// registration, login, refresh rotation, logout, session management,
// and the admin lockout surface. Handlers translate the domain error
// taxonomy into transport codes and record boundary events in the
// audit log.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"keyline/cmd/identity"
	"keyline/cmd/internal/auth/device"
	"keyline/cmd/internal/auth/session"
	"keyline/cmd/security/password"
)

// CredentialService is the identity surface the handlers consume.
type CredentialService interface {
	CreateAccount(ctx context.Context, email, plainPassword string, admin bool, now time.Time) (identity.Account, error)
	VerifyCredentials(ctx context.Context, email, plainPassword string, now time.Time) (identity.Account, error)
	LockoutStatus(ctx context.Context, email string, now time.Time) (identity.LockoutStatus, error)
}

// AccountWriter stamps account activity. Login timestamps are owned by
// the credential validator; the handlers only touch activity on refresh.
type AccountWriter interface {
	TouchActivity(ctx context.Context, id string, now time.Time) error
}

// SessionService is the session surface the handlers consume.
// *session.Service satisfies it.
type SessionService interface {
	Issue(ctx context.Context, now time.Time, acct session.AccountInfo, dev session.Device, rememberMe bool) (session.Issued, error)
	Rotate(ctx context.Context, now time.Time, refreshToken string, dev session.Device) (session.Issued, error)
	VerifyAccess(accessToken string, now time.Time) (session.AccessClaims, error)
	Logout(ctx context.Context, now time.Time, refreshToken string, everywhere bool) error
	LogoutEverywhere(ctx context.Context, now time.Time, accountID string) (int64, error)
	ListActive(ctx context.Context, accountID string, now time.Time) ([]session.Row, error)
	RevokeOwned(ctx context.Context, now time.Time, accountID, sessionID string) error
	RevokeOthers(ctx context.Context, now time.Time, accountID, currentSessionID string) (int64, error)
}

// Handler serves the authentication HTTP surface.
type Handler struct {
	cfg      Config
	log      *slog.Logger
	accounts CredentialService
	writer   AccountWriter
	sessions SessionService
	audit    Auditor
	failures LoginFailureSource
	now      func() time.Time
}

// NewHandler wires the HTTP boundary. audit and failures may be nil
// (auditing and IP throttling disabled).
func NewHandler(cfg Config, log *slog.Logger, accounts CredentialService, writer AccountWriter, sessions SessionService, audit Auditor, failures LoginFailureSource) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		cfg:      cfg,
		log:      log,
		accounts: accounts,
		writer:   writer,
		sessions: sessions,
		audit:    audit,
		failures: failures,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register mounts all auth routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)

	mux.HandleFunc("GET /sessions", h.withAuth(h.handleListSessions))
	mux.HandleFunc("DELETE /sessions/others", h.withAuth(h.handleRevokeOthers))
	mux.HandleFunc("DELETE /sessions/{id}", h.withAuth(h.handleRevokeSession))

	mux.HandleFunc("GET /admin/lockout", h.withAdmin(h.handleLockoutStatus))
	mux.HandleFunc("DELETE /admin/sessions/{account_id}", h.withAdmin(h.handleForceLogout))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	acct, err := h.accounts.CreateAccount(ctx, req.Email, req.Password, false, now)
	switch {
	case err == nil:
	case identity.IsConflict(err):
		writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	case identity.IsInvalidInput(err) || isPasswordPolicyError(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	default:
		h.serverError(w, "auth.register.fail", err)
		return
	}

	issued, err := h.issueForAccount(ctx, now, acct, r, req.RememberMe)
	if err != nil {
		h.serverError(w, "auth.register.issue.fail", err)
		return
	}

	h.record(ctx, now, AuditEvent{
		Action:    actionRegister,
		AccountID: &acct.ID,
		SessionID: &issued.SessionID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: r.UserAgent(),
	})

	writeJSON(w, http.StatusCreated, loginResponse{
		Account: toAccountResponse(acct),
		Tokens:  toTokenPair(issued),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	// Per-IP shield before any credential work.
	blocked, retry, err := h.checkLoginThrottle(ctx, ip, now)
	if err != nil {
		// Fail open on throttle lookup errors: the account lockout below
		// still bounds per-account abuse.
		h.log.Error("auth.login.throttle.fail", "error", err)
	}
	if blocked {
		h.record(ctx, now, AuditEvent{Action: actionLoginThrottle, IP: ip, UserAgent: ua, Meta: map[string]any{
			"retry_after_s": int64(retry.Seconds()),
		}})
		writeRateLimited(w, retry)
		return
	}

	acct, err := h.accounts.VerifyCredentials(ctx, req.Email, req.Password, now)
	if err != nil {
		h.writeLoginFailure(ctx, w, now, ip, ua, req.Email, err)
		return
	}

	issued, err := h.issueForAccount(ctx, now, acct, r, req.RememberMe)
	if err != nil {
		h.serverError(w, "auth.login.issue.fail", err)
		return
	}

	h.record(ctx, now, AuditEvent{
		Action:    actionLoginSuccess,
		AccountID: &acct.ID,
		SessionID: &issued.SessionID,
		IP:        ip,
		UserAgent: ua,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Account: toAccountResponse(acct),
		Tokens:  toTokenPair(issued),
	})
}

func (h *Handler) writeLoginFailure(ctx context.Context, w http.ResponseWriter, now time.Time, ip net.IP, ua, email string, err error) {
	var locked identity.LockedError
	switch {
	case errors.As(err, &locked):
		h.record(ctx, now, AuditEvent{Action: actionLoginLocked, IP: ip, UserAgent: ua, Meta: map[string]any{
			"email":        email,
			"locked_until": locked.Until.UTC().Format(time.RFC3339),
		}})
		writeJSON(w, http.StatusLocked, lockedErrorResponse(locked.Until))
	case identity.IsInvalidCredentials(err) || identity.IsNotFound(err) || identity.IsInvalidInput(err):
		h.record(ctx, now, AuditEvent{Action: actionLoginFail, IP: ip, UserAgent: ua, Meta: map[string]any{
			"email": email,
		}})
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	default:
		h.serverError(w, "auth.login.fail", err)
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	issued, err := h.sessions.Rotate(ctx, now, req.RefreshToken, h.deviceFrom(r))
	if err != nil {
		// Malformed, expired, revoked, and unknown all collapse into one
		// answer so callers cannot probe token state.
		if errors.Is(err, session.ErrTokenMalformed) ||
			errors.Is(err, session.ErrTokenExpired) ||
			errors.Is(err, session.ErrTokenRevoked) ||
			errors.Is(err, session.ErrSessionNotFound) {
			h.record(ctx, now, AuditEvent{Action: actionRefreshFail, IP: ip, UserAgent: ua})
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token")
			return
		}
		h.serverError(w, "auth.refresh.fail", err)
		return
	}

	// Refresh counts as account activity.
	if err := h.writer.TouchActivity(ctx, issued.AccountID, now); err != nil {
		h.log.Error("auth.refresh.touch.fail", "error", err, "account_id", issued.AccountID)
	}

	h.record(ctx, now, AuditEvent{Action: actionRefreshOK, SessionID: &issued.SessionID, IP: ip, UserAgent: ua})

	writeJSON(w, http.StatusOK, refreshResponse{Tokens: toTokenPair(issued)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	var req logoutRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		// Logout never fails; an unreadable body still acknowledges.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.sessions.Logout(ctx, now, req.RefreshToken, req.AllDevices); err != nil {
		// Storage errors are logged, yet the client still sees success:
		// its tokens are gone either way.
		h.log.Error("auth.logout.fail", "error", err)
	} else {
		action := actionLogout
		if req.AllDevices {
			action = actionLogoutAll
		}
		h.record(ctx, now, AuditEvent{Action: action, IP: clientIP(r, h.cfg.TrustProxy), UserAgent: r.UserAgent()})
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) issueForAccount(ctx context.Context, now time.Time, acct identity.Account, r *http.Request, rememberMe bool) (session.Issued, error) {
	return h.sessions.Issue(ctx, now, session.AccountInfo{
		ID:    acct.ID,
		Email: acct.Email,
		Admin: acct.Admin,
	}, h.deviceFrom(r), rememberMe)
}

func (h *Handler) deviceFrom(r *http.Request) session.Device {
	ua := r.UserAgent()
	return session.Device{
		Label:     device.Label(ua),
		UserAgent: ua,
		IP:        clientIP(r, h.cfg.TrustProxy),
	}
}

func (h *Handler) record(ctx context.Context, now time.Time, ev AuditEvent) {
	if h.audit != nil {
		h.audit.Record(ctx, now, ev)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, event string, err error) {
	h.log.Error(event, "error", err)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

func isPasswordPolicyError(err error) bool {
	return errors.Is(err, password.ErrPasswordTooShort) ||
		errors.Is(err, password.ErrPasswordTooLong) ||
		errors.Is(err, password.ErrWeakPassword)
}

func toAccountResponse(a identity.Account) accountResponse {
	return accountResponse{ID: a.ID, Email: a.Email, Admin: a.Admin}
}

func toTokenPair(i session.Issued) tokenPairResponse {
	return tokenPairResponse{
		SessionID:        i.SessionID,
		AccessToken:      i.AccessToken,
		AccessExpiresAt:  i.AccessExp,
		RefreshToken:     i.RefreshToken,
		RefreshExpiresAt: i.RefreshExp,
	}
}
