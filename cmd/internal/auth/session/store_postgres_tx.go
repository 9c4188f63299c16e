package session

import (
	"context"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
)

// Transaction-scoped helpers backing PostgresStore.Rotate.

func getByRefreshHashForUpdateTx(ctx context.Context, tx pgx.Tx, table, refreshHash string) (Row, error) {
	return scanSessionRow(tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM `+table+`
		WHERE refresh_token_hash = $1
		FOR UPDATE
	`, refreshHash))
}

func getByIDTx(ctx context.Context, tx pgx.Tx, table, sessionID string) (Row, error) {
	return scanSessionRow(tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM `+table+`
		WHERE id = $1
	`, sessionID))
}

func createTx(ctx context.Context, tx pgx.Tx, table string, now time.Time, accountID string, dev Device, refreshHash string, expiresAt time.Time, rememberMe bool) (string, error) {
	id := ulid.Make().String()

	var ip net.IP
	if dev.IP != nil {
		ip = dev.IP
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO `+table+` (
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

func markRotatedTx(ctx context.Context, tx pgx.Tx, table string, now time.Time, oldID, newID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE `+table+`
		SET last_used_at = $2,
		    revoked_at = $2,
		    revoked_reason = $3,
		    replaced_by_session_id = $4
		WHERE id = $1
	`, oldID, now, ReasonRotation, newID)
	return err
}

func deleteTx(ctx context.Context, tx pgx.Tx, table, sessionID string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM `+table+`
		WHERE id = $1
	`, sessionID)
	return err
}
