package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (keyline.sessions).
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the session store (default "keyline").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "keyline"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "sessions"}.Sanitize()
}

const sessionColumns = `
	id, account_id, refresh_token_hash,
	remember_me, device_label, user_agent, ip,
	created_at, last_used_at, expires_at,
	revoked_at, revoked_reason, replaced_by_session_id`

// Create inserts a new session row and returns its ULID.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, accountID string, dev Device, refreshHash string, expiresAt time.Time, rememberMe bool) (string, error) {
	id := ulid.Make().String()

	var ip net.IP
	if dev.IP != nil {
		ip = dev.IP
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table()+` (
			id, account_id, refresh_token_hash,
			remember_me, device_label, user_agent, ip,
			created_at, last_used_at, expires_at,
			revoked_at, revoked_reason, replaced_by_session_id
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $8, $9,
			NULL, NULL, NULL
		)
	`, id, accountID, refreshHash, rememberMe, dev.Label, nullIfEmpty(dev.UserAgent), ip, now, expiresAt)
	if err != nil {
		return "", err
	}

	return id, nil
}

// GetByRefreshHash loads a session row by refresh secret hash.
func (s *PostgresStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	return scanSessionRow(s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM `+s.table()+`
		WHERE refresh_token_hash = $1
	`, refreshHash))
}

// Rotate retires the presented row and creates its successor inside a
// single transaction. The SELECT ... FOR UPDATE serializes concurrent
// presentations of the same secret: exactly one caller proceeds, the
// rest observe the revoked row.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, p RotateParams) (RotateOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return RotateOutcome{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := getByRefreshHashForUpdateTx(ctx, tx, s.table(), p.PresentedHash)
	if err != nil {
		return RotateOutcome{}, err
	}

	// Revocation check first: a retired or logged-out row presented again
	// fails identically, with no further side effects.
	if old.RevokedAt != nil {
		return RotateOutcome{}, ErrTokenRevoked
	}

	// Expired live row: delete as a housekeeping side effect, then fail.
	if !old.ExpiresAt.After(now) {
		if err := deleteTx(ctx, tx, s.table(), old.ID); err != nil {
			return RotateOutcome{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return RotateOutcome{}, err
		}
		return RotateOutcome{}, ErrTokenExpired
	}

	// Successor inherits the remember_me class with a fresh full TTL.
	ttl := p.TTL
	if old.RememberMe {
		ttl = p.TTLRemember
	}
	expiresAt := now.Add(ttl)

	newID, err := createTx(ctx, tx, s.table(), now, old.AccountID, p.Device, p.SuccessorHash, expiresAt, old.RememberMe)
	if err != nil {
		return RotateOutcome{}, err
	}

	if err := markRotatedTx(ctx, tx, s.table(), now, old.ID, newID); err != nil {
		return RotateOutcome{}, err
	}

	created, err := getByIDTx(ctx, tx, s.table(), newID)
	if err != nil {
		return RotateOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return RotateOutcome{}, err
	}

	return RotateOutcome{Old: old, New: created}, nil
}

// Revoke revokes a single session (idempotent; first reason wins).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET revoked_at = COALESCE(revoked_at, $2),
		    revoked_reason = COALESCE(revoked_reason, $3)
		WHERE id = $1
	`, sessionID, now, reason)
	return err
}

// RevokeOwned revokes a session only when it belongs to accountID.
// The ownership predicate lives in the WHERE clause so foreign session
// ids are indistinguishable from missing ones.
func (s *PostgresStore) RevokeOwned(ctx context.Context, now time.Time, accountID, sessionID, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET revoked_at = $3,
		    revoked_reason = $4
		WHERE id = $1
		  AND account_id = $2
		  AND revoked_at IS NULL
	`, sessionID, accountID, now, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllForAccount revokes every non-revoked session of an account.
func (s *PostgresStore) RevokeAllForAccount(ctx context.Context, now time.Time, accountID, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET revoked_at = $2,
		    revoked_reason = $3
		WHERE account_id = $1
		  AND revoked_at IS NULL
	`, accountID, now, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RevokeOthers revokes every non-revoked session except keepSessionID.
func (s *PostgresStore) RevokeOthers(ctx context.Context, now time.Time, accountID, keepSessionID, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET revoked_at = $3,
		    revoked_reason = $4
		WHERE account_id = $1
		  AND id <> $2
		  AND revoked_at IS NULL
	`, accountID, keepSessionID, now, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListActive returns live sessions, most recently used first.
func (s *PostgresStore) ListActive(ctx context.Context, accountID string, now time.Time) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM `+s.table()+`
		WHERE account_id = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
		ORDER BY COALESCE(last_used_at, created_at) DESC
	`, accountID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ---- sweeper surface (not part of Store) ----

// RevokeExpired marks expired live rows revoked so listings stay correct
// between deletion sweeps. Revocation stays monotonic: already-revoked
// rows are untouched.
func (s *PostgresStore) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET revoked_at = $1,
		    revoked_reason = $2
		WHERE expires_at < $1
		  AND revoked_at IS NULL
	`, now, ReasonExpirySweep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes rows past their expiry.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table()+`
		WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteRevokedBefore removes revoked rows older than the retention cutoff.
func (s *PostgresStore) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table()+`
		WHERE revoked_at IS NOT NULL
		  AND revoked_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type pgxRowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(r pgxRowScanner) (Row, error) {
	var row Row
	err := r.Scan(
		&row.ID,
		&row.AccountID,
		&row.RefreshTokenHash,
		&row.RememberMe,
		&row.DeviceLabel,
		&row.UserAgent,
		&row.IP,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.RevokedReason,
		&row.ReplacedBySessionID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
