package api

import (
	"context"

	"keyline/cmd/identity"
	"keyline/cmd/internal/auth/session"
)

// AccountLookup is the slice of the identity store the directory needs.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (identity.Account, error)
}

// directory adapts the identity store to the session layer's view of an
// account, for the claims minted during refresh rotation.
type directory struct {
	accounts AccountLookup
}

// NewDirectory returns a session.Directory backed by the identity store.
func NewDirectory(accounts AccountLookup) session.Directory {
	return directory{accounts: accounts}
}

func (d directory) AccountInfo(ctx context.Context, accountID string) (session.AccountInfo, error) {
	acct, err := d.accounts.GetByID(ctx, accountID)
	if err != nil {
		return session.AccountInfo{}, err
	}
	return session.AccountInfo{ID: acct.ID, Email: acct.Email, Admin: acct.Admin}, nil
}
