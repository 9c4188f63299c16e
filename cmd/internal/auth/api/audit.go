package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions recorded at the HTTP boundary. auth.login.fail feeds
// the login IP throttle.
const (
	actionRegister      = "auth.register"
	actionLoginSuccess  = "auth.login.success"
	actionLoginFail     = "auth.login.fail"
	actionLoginLocked   = "auth.login.locked"
	actionLoginThrottle = "auth.login.throttled"
	actionRefreshOK     = "auth.refresh.success"
	actionRefreshFail   = "auth.refresh.fail"
	actionLogout        = "auth.logout"
	actionLogoutAll     = "auth.logout_all"
	actionSessionRevoke = "session.revoke"
	actionRevokeOthers  = "session.revoke_others"
	actionForceLogout   = "admin.force_logout"
)

// AuditEvent is one boundary event destined for keyline.audit_log.
type AuditEvent struct {
	Action    string
	AccountID *string
	SessionID *string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// Auditor records boundary events. Implementations must be safe for
// concurrent use and must never fail a request.
type Auditor interface {
	Record(ctx context.Context, now time.Time, ev AuditEvent)
}

// LoginFailureSource feeds the login IP throttle.
type LoginFailureSource interface {
	RecentLoginFailures(ctx context.Context, ip net.IP, since time.Time) ([]time.Time, error)
}

// PgAuditLog writes audit events to keyline.audit_log and serves the
// failure lookback queries.
type PgAuditLog struct {
	pool   *pgxpool.Pool
	schema string
	log    *slog.Logger
}

// NewPgAuditLog builds the Postgres audit log on the given schema
// (empty means "keyline").
func NewPgAuditLog(pool *pgxpool.Pool, schema string, log *slog.Logger) *PgAuditLog {
	if schema == "" {
		schema = "keyline"
	}
	if log == nil {
		log = slog.Default()
	}
	return &PgAuditLog{pool: pool, schema: schema, log: log}
}

func (a *PgAuditLog) table() string {
	return pgx.Identifier{a.schema, "audit_log"}.Sanitize()
}

// Record inserts an audit row. Failures are logged and swallowed so
// auditing never breaks the request path.
func (a *PgAuditLog) Record(ctx context.Context, now time.Time, ev AuditEvent) {
	if a == nil || a.pool == nil {
		return
	}

	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO `+a.table()+` (
			account_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, ev.AccountID, ev.SessionID, action, now, ipVal, trimOrNil(ev.UserAgent), metaVal)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "error", err, "action", action)
	}
}

// RecentLoginFailures returns timestamps of login failures from this IP
// since the cutoff, newest first. Capped to keep the throttle query cheap.
func (a *PgAuditLog) RecentLoginFailures(ctx context.Context, ip net.IP, since time.Time) ([]time.Time, error) {
	if a == nil || a.pool == nil || ip == nil {
		return nil, nil
	}

	rows, err := a.pool.Query(ctx, `
		SELECT created_at
		FROM `+a.table()+`
		WHERE action = $1
		  AND ip = $2
		  AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 500
	`, actionLoginFail, ip.String(), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
