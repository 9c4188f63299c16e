package identity

import (
	"context"
	"fmt"
	"time"

	"keyline/cmd/security/password"
)

// LockoutPolicy controls counter-based brute-force lockout.
type LockoutPolicy struct {
	// MaxFailedAttempts is the consecutive-failure count at which the
	// account locks.
	MaxFailedAttempts int
	// LockoutDuration is the window applied when the threshold is reached.
	LockoutDuration time.Duration
}

// DefaultLockoutPolicy locks after 10 consecutive failures for 24 hours.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailedAttempts: 10,
		LockoutDuration:   24 * time.Hour,
	}
}

// Validator owns registration and credential verification.
//
// Security contract:
//   - Unknown email and wrong password are indistinguishable to callers
//     (both ErrInvalidCredentials), including timing: a dummy argon2id
//     verify runs when the account is missing.
//   - The lockout check runs BEFORE any password work; a locked account
//     never reveals whether the presented password was correct.
//   - Counter and lockout state are persisted on every verification call.
type Validator struct {
	store  Store
	pw     password.Config
	policy LockoutPolicy

	// dummyHash keeps missing-account verification on the same code path
	// cost-wise as a real mismatch.
	dummyHash string
}

// NewValidator constructs a Validator and precomputes the timing dummy hash.
func NewValidator(store Store, pw password.Config, policy LockoutPolicy) (*Validator, error) {
	if store == nil {
		return nil, OpError{Op: "identity.NewValidator", Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if policy.MaxFailedAttempts <= 0 {
		policy.MaxFailedAttempts = DefaultLockoutPolicy().MaxFailedAttempts
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = DefaultLockoutPolicy().LockoutDuration
	}

	v := &Validator{store: store, pw: pw, policy: policy}
	if hash, err := pw.Hash("dummy-password-for-timing-only"); err == nil {
		v.dummyHash = hash
	}
	return v, nil
}

// CreateAccount registers a new account: validates the email shape and the
// password policy, hashes, and inserts. Duplicate email -> ConflictError.
func (v *Validator) CreateAccount(ctx context.Context, email, plainPassword string, admin bool, now time.Time) (Account, error) {
	const op = "identity.Validator.CreateAccount"

	if !ValidEmail(email) {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid email"}
	}

	hash, err := v.pw.Hash(plainPassword)
	if err != nil {
		// Policy errors (too short, too weak, ...) surface unchanged for
		// the API layer to map.
		return Account{}, err
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	return v.store.CreateAccount(ctx, CreateAccountInput{
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		PasswordHash: hash,
		Admin:        admin,
		Now:          now,
	})
}

// VerifyCredentials checks email+password and maintains lockout state.
//
// Outcomes:
//   - match: counter reset to 0, lockout cleared, last_login stamped, account returned
//   - mismatch: counter incremented; at the threshold the account locks and
//     a LockedError carrying the window end is returned
//   - locked (window still active): LockedError, before any password work
//   - unknown email: ErrInvalidCredentials after a dummy verify
func (v *Validator) VerifyCredentials(ctx context.Context, email, plainPassword string, now time.Time) (Account, error) {
	const op = "identity.Validator.VerifyCredentials"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	a, err := v.store.GetByEmailNorm(ctx, NormalizeEmail(email))
	if err != nil {
		if IsNotFound(err) {
			if v.dummyHash != "" {
				_, _ = v.pw.Verify(v.dummyHash, plainPassword)
			}
			return Account{}, OpError{Op: op, Kind: ErrInvalidCredentials}
		}
		return Account{}, err
	}

	// Lockout check precedes password verification.
	if a.LockedUntil != nil && a.LockedUntil.After(now) {
		return Account{}, LockedError{Until: *a.LockedUntil, Attempts: a.FailedLoginAttempts}
	}

	ok, err := v.pw.Verify(a.PasswordHash, plainPassword)
	if err != nil {
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}

	if ok {
		if err := v.store.SetLoginState(ctx, a.ID, 0, nil, now); err != nil {
			return Account{}, err
		}
		if err := v.store.RecordLogin(ctx, a.ID, now); err != nil {
			return Account{}, err
		}
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
		a.LastLoginAt = &now
		a.LastActivityAt = &now
		return a, nil
	}

	// A lockout that already expired means the previous streak is stale:
	// counting restarts rather than re-locking on the first new failure.
	attempts := a.FailedLoginAttempts
	if a.LockedUntil != nil {
		attempts = 0
	}
	attempts++

	if attempts >= v.policy.MaxFailedAttempts {
		until := now.Add(v.policy.LockoutDuration)
		if err := v.store.SetLoginState(ctx, a.ID, attempts, &until, now); err != nil {
			return Account{}, err
		}
		return Account{}, LockedError{Until: until, Attempts: attempts}
	}

	if err := v.store.SetLoginState(ctx, a.ID, attempts, nil, now); err != nil {
		return Account{}, err
	}
	return Account{}, OpError{Op: op, Kind: ErrInvalidCredentials}
}

// LockoutStatus returns the lockout view for the admin surface.
// Missing email -> ErrNotFound.
func (v *Validator) LockoutStatus(ctx context.Context, email string, now time.Time) (LockoutStatus, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	a, err := v.store.GetByEmailNorm(ctx, NormalizeEmail(email))
	if err != nil {
		return LockoutStatus{}, err
	}

	locked := a.LockedUntil != nil && a.LockedUntil.After(now)
	return LockoutStatus{
		Email:          a.Email,
		Locked:         locked,
		LockedUntil:    a.LockedUntil,
		FailedAttempts: a.FailedLoginAttempts,
	}, nil
}
