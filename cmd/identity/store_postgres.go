package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements account persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the account store (default "keyline").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "keyline",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) accountsTable() string { return pgIdent(s.schema, "accounts") }

const accountColumns = `
	id, email, email_norm, password_hash, is_admin,
	failed_login_attempts, locked_until,
	last_login_at, last_activity_at, created_at, updated_at`

// CreateAccount inserts a new account row.
func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" || strings.TrimSpace(in.EmailNorm) == "" {
		return Account{}, pgInvalid(op, "email is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return Account{}, pgInvalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, fmt.Errorf("%s: ulid: %w", op, err)
	}

	q := `
		INSERT INTO ` + s.accountsTable() + ` (
			id, email, email_norm, password_hash, is_admin,
			failed_login_attempts, locked_until,
			last_login_at, last_activity_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			0, NULL,
			NULL, NULL, $6, $6
		)
	`
	if _, err := s.pool.Exec(ctx, q, id, email, in.EmailNorm, in.PasswordHash, in.Admin, now); err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return Account{
		ID:           id,
		Email:        email,
		EmailNorm:    in.EmailNorm,
		PasswordHash: in.PasswordHash,
		Admin:        in.Admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetByEmailNorm loads an account by normalized email.
func (s *PostgresStore) GetByEmailNorm(ctx context.Context, emailNorm string) (Account, error) {
	const op = "identity.GetByEmailNorm"

	emailNorm = strings.TrimSpace(emailNorm)
	if emailNorm == "" {
		return Account{}, pgInvalid(op, "email is required")
	}

	q := `SELECT ` + accountColumns + ` FROM ` + s.accountsTable() + ` WHERE email_norm = $1`
	return s.scanAccount(ctx, op, q, emailNorm)
}

// GetByID loads an account by ULID.
func (s *PostgresStore) GetByID(ctx context.Context, accountID string) (Account, error) {
	const op = "identity.GetByID"

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Account{}, pgInvalid(op, "account id is required")
	}

	q := `SELECT ` + accountColumns + ` FROM ` + s.accountsTable() + ` WHERE id = $1`
	return s.scanAccount(ctx, op, q, accountID)
}

func (s *PostgresStore) scanAccount(ctx context.Context, op, q string, arg any) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&a.ID,
		&a.Email,
		&a.EmailNorm,
		&a.PasswordHash,
		&a.Admin,
		&a.FailedLoginAttempts,
		&a.LockedUntil,
		&a.LastLoginAt,
		&a.LastActivityAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// SetLoginState persists the failed-attempt counter and lockout window.
func (s *PostgresStore) SetLoginState(ctx context.Context, accountID string, attempts int, lockedUntil *time.Time, now time.Time) error {
	const op = "identity.SetLoginState"

	q := `
		UPDATE ` + s.accountsTable() + `
		SET failed_login_attempts = $2,
		    locked_until = $3,
		    updated_at = $4
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, accountID, attempts, lockedUntil, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// RecordLogin stamps last_login_at and last_activity_at.
func (s *PostgresStore) RecordLogin(ctx context.Context, accountID string, now time.Time) error {
	const op = "identity.RecordLogin"

	q := `
		UPDATE ` + s.accountsTable() + `
		SET last_login_at = $2,
		    last_activity_at = $2,
		    updated_at = $2
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, accountID, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// TouchActivity stamps last_activity_at (best-effort on the refresh path).
func (s *PostgresStore) TouchActivity(ctx context.Context, accountID string, now time.Time) error {
	const op = "identity.TouchActivity"

	q := `
		UPDATE ` + s.accountsTable() + `
		SET last_activity_at = $2
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, q, accountID, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ---- helpers ----

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_accounts_email_norm":
		return "email", true
	case "uq_sessions_refresh_token_hash":
		return "refresh_token", true
	default:
		switch {
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "refresh") && strings.Contains(c, "token"):
			return "refresh_token", true
		default:
			return "unique", true
		}
	}
}
