package api

import (
	"context"
	"net/http"
	"strings"

	"keyline/cmd/internal/auth/session"
)

type contextKey int

const claimsKey contextKey = iota

// claimsFrom returns the access claims placed by withAuth.
func claimsFrom(ctx context.Context) (session.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(session.AccessClaims)
	return claims, ok
}

// withAuth requires a valid bearer access token and places its claims
// into the request context. Validation is signature + expiry only.
func (h *Handler) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := h.sessions.VerifyAccess(tok, h.now())
		if err != nil {
			// Expired and malformed are indistinct to the caller.
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// withAdmin composes withAuth with an admin capability check.
func (h *Handler) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return h.withAuth(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r.Context())
		if !ok || !claims.Admin {
			writeError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
