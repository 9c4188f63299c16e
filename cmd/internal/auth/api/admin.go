package api

import (
	"net/http"
	"strings"

	"keyline/cmd/identity"
)

// GET /admin/lockout?email=<addr> reports brute-force lockout state.
// Admin capability is enforced by withAdmin.
func (h *Handler) handleLockoutStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing email parameter")
		return
	}

	status, err := h.accounts.LockoutStatus(ctx, email, now)
	if identity.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "not_found", "account not found")
		return
	}
	if err != nil {
		h.serverError(w, "admin.lockout.fail", err)
		return
	}

	writeJSON(w, http.StatusOK, lockoutResponse{
		Email:          status.Email,
		Locked:         status.Locked,
		LockedUntil:    status.LockedUntil,
		FailedAttempts: status.FailedAttempts,
	})
}

// DELETE /admin/sessions/{account_id} revokes every live session of an
// account (compromised-account response). Returns the revoked count;
// an unknown account simply revokes nothing.
func (h *Handler) handleForceLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	accountID := strings.TrimSpace(r.PathValue("account_id"))
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing account id")
		return
	}

	n, err := h.sessions.LogoutEverywhere(ctx, now, accountID)
	if err != nil {
		h.serverError(w, "admin.force_logout.fail", err)
		return
	}

	h.record(ctx, now, AuditEvent{
		Action:    actionForceLogout,
		AccountID: &accountID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: r.UserAgent(),
		Meta:      map[string]any{"revoked": n},
	})

	writeJSON(w, http.StatusOK, revokedCountResponse{Revoked: n})
}
