package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are opt-in and require KEYLINE_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreateAndGetByRefreshHash(t *testing.T) {
	t.Parallel()

	store, done := mustSessionStore(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	hash := strings.Repeat("a", 64)

	id, err := store.Create(ctx, now, testAccountID(1), Device{Label: "Chrome on macOS", UserAgent: "Mozilla/5.0"}, hash, now.Add(24*time.Hour), true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	row, err := store.GetByRefreshHash(ctx, hash)
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if row.ID != id || row.AccountID != testAccountID(1) {
		t.Fatalf("row mismatch: %+v", row)
	}
	if !row.RememberMe || row.DeviceLabel != "Chrome on macOS" {
		t.Fatalf("device state not persisted: %+v", row)
	}
	if row.RevokedAt != nil || row.ReplacedBySessionID != nil {
		t.Fatalf("fresh row should be live: %+v", row)
	}

	if _, err := store.GetByRefreshHash(ctx, strings.Repeat("f", 64)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got: %v", err)
	}
}

func TestPostgresStore_Rotate_SingleUse(t *testing.T) {
	t.Parallel()

	store, done := mustSessionStore(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	hash := strings.Repeat("b", 64)
	successor := strings.Repeat("c", 64)

	if _, err := store.Create(ctx, now, testAccountID(2), Device{}, hash, now.Add(24*time.Hour), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := store.Rotate(ctx, now.Add(time.Minute), RotateParams{
		PresentedHash: hash,
		SuccessorHash: successor,
		Device:        Device{Label: "Firefox on Linux"},
		TTL:           24 * time.Hour,
		TTLRemember:   720 * time.Hour,
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if out.New.RefreshTokenHash != successor {
		t.Fatalf("successor hash mismatch")
	}
	if out.New.RememberMe {
		t.Fatalf("successor must inherit remember_me=false")
	}

	old, err := store.GetByRefreshHash(ctx, hash)
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if old.RevokedAt == nil || old.RevokedReason == nil || *old.RevokedReason != ReasonRotation {
		t.Fatalf("old row not retired: %+v", old)
	}
	if old.ReplacedBySessionID == nil || *old.ReplacedBySessionID != out.New.ID {
		t.Fatalf("old row not linked to successor: %+v", old)
	}

	// Second presentation of the same hash fails as revoked.
	_, err = store.Rotate(ctx, now.Add(2*time.Minute), RotateParams{
		PresentedHash: hash,
		SuccessorHash: strings.Repeat("d", 64),
		TTL:           24 * time.Hour,
		TTLRemember:   720 * time.Hour,
	})
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("reuse: expected ErrTokenRevoked, got %v", err)
	}
}

func TestPostgresStore_Rotate_ExpiredRowDeleted(t *testing.T) {
	t.Parallel()

	store, done := mustSessionStore(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	hash := strings.Repeat("e", 64)

	if _, err := store.Create(ctx, now, testAccountID(3), Device{}, hash, now.Add(time.Minute), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := store.Rotate(ctx, now.Add(time.Hour), RotateParams{
		PresentedHash: hash,
		SuccessorHash: strings.Repeat("0", 64),
		TTL:           24 * time.Hour,
		TTLRemember:   720 * time.Hour,
	})
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	if _, err := store.GetByRefreshHash(ctx, hash); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired row should be deleted, got %v", err)
	}
}

func TestPostgresStore_RevokeOwned_CrossAccount(t *testing.T) {
	t.Parallel()

	store, done := mustSessionStore(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)

	mine, err := store.Create(ctx, now, testAccountID(4), Device{}, strings.Repeat("1", 64), now.Add(24*time.Hour), false)
	if err != nil {
		t.Fatalf("create mine: %v", err)
	}
	theirs, err := store.Create(ctx, now, testAccountID(5), Device{}, strings.Repeat("2", 64), now.Add(24*time.Hour), false)
	if err != nil {
		t.Fatalf("create theirs: %v", err)
	}

	ok, err := store.RevokeOwned(ctx, now, testAccountID(4), theirs, ReasonManual)
	if err != nil {
		t.Fatalf("revoke foreign: %v", err)
	}
	if ok {
		t.Fatalf("foreign session must not be revocable")
	}

	ok, err = store.RevokeOwned(ctx, now, testAccountID(4), mine, ReasonManual)
	if err != nil {
		t.Fatalf("revoke owned: %v", err)
	}
	if !ok {
		t.Fatalf("owned session should be revocable")
	}

	active, err := store.ListActive(ctx, testAccountID(5), now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("other account's session affected")
	}
}

func TestPostgresStore_Sweeper(t *testing.T) {
	t.Parallel()

	store, done := mustSessionStore(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)

	// One expired live row, one live row, one long-revoked row.
	if _, err := store.Create(ctx, now.Add(-48*time.Hour), testAccountID(6), Device{}, strings.Repeat("3", 64), now.Add(-time.Hour), false); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if _, err := store.Create(ctx, now, testAccountID(6), Device{}, strings.Repeat("4", 64), now.Add(24*time.Hour), false); err != nil {
		t.Fatalf("create live: %v", err)
	}
	oldRevoked, err := store.Create(ctx, now.Add(-240*time.Hour), testAccountID(6), Device{}, strings.Repeat("5", 64), now.Add(24*time.Hour), false)
	if err != nil {
		t.Fatalf("create revoked: %v", err)
	}
	if err := store.Revoke(ctx, now.Add(-200*time.Hour), oldRevoked, ReasonLogout); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	n, err := store.RevokeExpired(ctx, now)
	if err != nil {
		t.Fatalf("revoke expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("revoke expired touched %d rows, want 1", n)
	}

	expired, err := store.GetByRefreshHash(ctx, strings.Repeat("3", 64))
	if err != nil {
		t.Fatalf("get expired: %v", err)
	}
	if expired.RevokedReason == nil || *expired.RevokedReason != ReasonExpirySweep {
		t.Fatalf("expired row reason = %v", expired.RevokedReason)
	}

	n, err = store.DeleteRevokedBefore(ctx, now.Add(-168*time.Hour))
	if err != nil {
		t.Fatalf("delete revoked before: %v", err)
	}
	if n != 1 {
		t.Fatalf("retention delete touched %d rows, want 1", n)
	}

	n, err = store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expiry delete touched %d rows, want 1", n)
	}

	active, err := store.ListActive(ctx, testAccountID(6), now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("live row should survive sweeps, got %d", len(active))
	}
}

// ---- helpers ----

func testAccountID(n int) string {
	return fmt.Sprintf("%026d", n)
}

func mustSessionStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	pool := mustOpenSessionTestPool(t)

	schema := "keyline_it_" + strings.ToLower(ulid.Make().String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		pool.Close()
		t.Fatalf("create schema: %v", err)
	}

	mustApplySessionsSchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		pool.Close()
		t.Fatalf("new store: %v", err)
	}

	done := func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_, _ = pool.Exec(dropCtx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		pool.Close()
	}
	return store, done
}

func mustOpenSessionTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("KEYLINE_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: KEYLINE_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse KEYLINE_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipSessionIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (KEYLINE_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustApplySessionsSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sessions := pgx.Identifier{schema, "sessions"}.Sanitize()

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  refresh_token_hash TEXT NOT NULL,
  remember_me BOOLEAN NOT NULL DEFAULT FALSE,
  device_label TEXT NOT NULL DEFAULT '',
  user_agent TEXT NULL,
  ip INET NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_used_at TIMESTAMPTZ NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  revoked_at TIMESTAMPTZ NULL,
  revoked_reason TEXT NULL,
  replaced_by_session_id TEXT NULL,

  CONSTRAINT chk_sessions_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_sessions_refresh_token_hash UNIQUE (refresh_token_hash)
);

CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON %s (account_id);
`, sessions, sessions)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipSessionIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}
