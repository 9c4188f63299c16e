package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"keyline/cmd/internal/auth/session"
)

// clientIP resolves the request source IP. With trustProxy set, the
// leftmost valid X-Forwarded-For entry wins.
func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(strings.TrimSpace(host))
}

func parseForwardedIP(header string) net.IP {
	for _, part := range strings.Split(header, ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
			return ip
		}
	}
	return nil
}

func toSessionItem(row session.Row, currentSessionID string) sessionItem {
	item := sessionItem{
		ID:          row.ID,
		DeviceLabel: row.DeviceLabel,
		Current:     row.ID == currentSessionID,
		RememberMe:  row.RememberMe,
		CreatedAt:   row.CreatedAt,
		LastUsedAt:  row.LastUsedAt,
		ExpiresAt:   row.ExpiresAt,
	}
	if row.IP != nil {
		s := row.IP.String()
		item.IP = &s
	}
	return item
}

type lockedErrorBody struct {
	Error       apiError  `json:"error"`
	LockedUntil time.Time `json:"locked_until"`
}

func lockedErrorResponse(until time.Time) lockedErrorBody {
	return lockedErrorBody{
		Error: apiError{
			Code:    "account_locked",
			Message: "account temporarily locked after repeated failures",
		},
		LockedUntil: until.UTC(),
	}
}
