package api

import (
	"errors"
	"net/http"

	"keyline/cmd/internal/auth/session"
)

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	claims, ok := claimsFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing claims")
		return
	}

	rows, err := h.sessions.ListActive(ctx, claims.AccountID, now)
	if err != nil {
		h.serverError(w, "sessions.list.fail", err)
		return
	}

	items := make([]sessionItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toSessionItem(row, claims.SessionID))
	}

	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: items})
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	claims, ok := claimsFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing claims")
		return
	}

	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing session id")
		return
	}

	err := h.sessions.RevokeOwned(ctx, now, claims.AccountID, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		// Foreign sessions answer exactly like missing ones.
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	if err != nil {
		h.serverError(w, "sessions.revoke.fail", err)
		return
	}

	h.record(ctx, now, AuditEvent{
		Action:    actionSessionRevoke,
		AccountID: &claims.AccountID,
		SessionID: &sessionID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: r.UserAgent(),
	})

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	claims, ok := claimsFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing claims")
		return
	}

	n, err := h.sessions.RevokeOthers(ctx, now, claims.AccountID, claims.SessionID)
	if err != nil {
		h.serverError(w, "sessions.revoke_others.fail", err)
		return
	}

	h.record(ctx, now, AuditEvent{
		Action:    actionRevokeOthers,
		AccountID: &claims.AccountID,
		SessionID: &claims.SessionID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: r.UserAgent(),
		Meta:      map[string]any{"revoked": n},
	})

	writeJSON(w, http.StatusOK, revokedCountResponse{Revoked: n})
}
