package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"keyline/cmd/security/password"
)

// memStore is an in-memory Store for validator tests.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]*Account
	byEmail map[string]string // email_norm -> id
}

func newMemStore() *memStore {
	return &memStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (m *memStore) CreateAccount(_ context.Context, in CreateAccountInput) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.byEmail[in.EmailNorm]; dup {
		return Account{}, ConflictError{Op: "mem.CreateAccount", Field: "email"}
	}

	id, err := NewULID(in.Now)
	if err != nil {
		return Account{}, err
	}
	a := &Account{
		ID:           id,
		Email:        in.Email,
		EmailNorm:    in.EmailNorm,
		PasswordHash: in.PasswordHash,
		Admin:        in.Admin,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}
	m.byID[id] = a
	m.byEmail[in.EmailNorm] = id
	return *a, nil
}

func (m *memStore) GetByEmailNorm(_ context.Context, emailNorm string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[emailNorm]
	if !ok {
		return Account{}, NotFoundError{Op: "mem.GetByEmailNorm", Resource: "account"}
	}
	return *m.byID[id], nil
}

func (m *memStore) GetByID(_ context.Context, accountID string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[accountID]
	if !ok {
		return Account{}, NotFoundError{Op: "mem.GetByID", Resource: "account"}
	}
	return *a, nil
}

func (m *memStore) SetLoginState(_ context.Context, accountID string, attempts int, lockedUntil *time.Time, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[accountID]
	if !ok {
		return NotFoundError{Op: "mem.SetLoginState", Resource: "account"}
	}
	a.FailedLoginAttempts = attempts
	a.LockedUntil = lockedUntil
	a.UpdatedAt = now
	return nil
}

func (m *memStore) RecordLogin(_ context.Context, accountID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[accountID]
	if !ok {
		return NotFoundError{Op: "mem.RecordLogin", Resource: "account"}
	}
	a.LastLoginAt = &now
	a.LastActivityAt = &now
	return nil
}

func (m *memStore) TouchActivity(_ context.Context, accountID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.byID[accountID]; ok {
		a.LastActivityAt = &now
	}
	return nil
}

func testPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	// Cheap parameters keep the lockout loops fast.
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	return cfg
}

func newTestValidator(t *testing.T) (*Validator, *memStore) {
	t.Helper()
	st := newMemStore()
	v, err := NewValidator(st, testPasswordConfig(), DefaultLockoutPolicy())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v, st
}

func TestVerifyCredentials_Success(t *testing.T) {
	v, _ := newTestValidator(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := v.CreateAccount(ctx, "alice@example.com", "a long valid password", false, now); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	a, err := v.VerifyCredentials(ctx, "Alice@Example.COM", "a long valid password", now)
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if a.EmailNorm != "alice@example.com" {
		t.Fatalf("unexpected account: %+v", a)
	}
	if a.LastLoginAt == nil || !a.LastLoginAt.Equal(now) {
		t.Fatalf("last_login_at not stamped")
	}
}

func TestVerifyCredentials_UnknownEmail(t *testing.T) {
	v, _ := newTestValidator(t)

	_, err := v.VerifyCredentials(context.Background(), "nobody@example.com", "whatever password", time.Now().UTC())
	if !IsInvalidCredentials(err) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyCredentials_LockoutAtThreshold(t *testing.T) {
	v, st := newTestValidator(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	acct, err := v.CreateAccount(ctx, "bob@example.com", "a long valid password", false, now)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	// Nine failures: counted, never locked.
	for i := 1; i <= 9; i++ {
		_, err := v.VerifyCredentials(ctx, "bob@example.com", "wrong password here", now)
		if !IsInvalidCredentials(err) {
			t.Fatalf("failure %d: expected ErrInvalidCredentials, got %v", i, err)
		}
		got, _ := st.GetByID(ctx, acct.ID)
		if got.FailedLoginAttempts != i {
			t.Fatalf("failure %d: counter=%d", i, got.FailedLoginAttempts)
		}
		if got.LockedUntil != nil {
			t.Fatalf("failure %d: unexpected lockout", i)
		}
	}

	// Tenth failure locks for 24h.
	_, err = v.VerifyCredentials(ctx, "bob@example.com", "wrong password here", now)
	var locked LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if !locked.Until.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected lockout end: %v", locked.Until)
	}

	// Correct password during the window is still rejected as locked.
	_, err = v.VerifyCredentials(ctx, "bob@example.com", "a long valid password", now.Add(time.Hour))
	if !IsLocked(err) {
		t.Fatalf("expected locked during window, got %v", err)
	}
}

func TestVerifyCredentials_SuccessResetsCounter(t *testing.T) {
	v, st := newTestValidator(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	acct, err := v.CreateAccount(ctx, "carol@example.com", "a long valid password", false, now)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	for i := 0; i < 4; i++ {
		_, _ = v.VerifyCredentials(ctx, "carol@example.com", "wrong password here", now)
	}

	if _, err := v.VerifyCredentials(ctx, "carol@example.com", "a long valid password", now); err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}

	got, _ := st.GetByID(ctx, acct.ID)
	if got.FailedLoginAttempts != 0 || got.LockedUntil != nil {
		t.Fatalf("counter not reset: attempts=%d locked=%v", got.FailedLoginAttempts, got.LockedUntil)
	}
}

func TestVerifyCredentials_ExpiredLockoutRestartsCounting(t *testing.T) {
	v, st := newTestValidator(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	acct, err := v.CreateAccount(ctx, "dave@example.com", "a long valid password", false, now)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	for i := 0; i < 10; i++ {
		_, _ = v.VerifyCredentials(ctx, "dave@example.com", "wrong password here", now)
	}
	got, _ := st.GetByID(ctx, acct.ID)
	if got.LockedUntil == nil {
		t.Fatalf("expected lockout after 10 failures")
	}

	// After the window, a single failure starts a fresh streak.
	later := now.Add(25 * time.Hour)
	_, err = v.VerifyCredentials(ctx, "dave@example.com", "wrong password here", later)
	if !IsInvalidCredentials(err) {
		t.Fatalf("expected ErrInvalidCredentials after window, got %v", err)
	}
	got, _ = st.GetByID(ctx, acct.ID)
	if got.FailedLoginAttempts != 1 {
		t.Fatalf("expected restarted counter=1, got %d", got.FailedLoginAttempts)
	}
	if got.LockedUntil != nil {
		t.Fatalf("expected lockout cleared after restart")
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	v, _ := newTestValidator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := v.CreateAccount(ctx, "erin@example.com", "a long valid password", false, now); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	_, err := v.CreateAccount(ctx, "Erin@Example.com", "another valid password", false, now)
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateAccount_InvalidInput(t *testing.T) {
	v, _ := newTestValidator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := v.CreateAccount(ctx, "not-an-email", "a long valid password", false, now); !IsInvalidInput(err) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := v.CreateAccount(ctx, "frank@example.com", "short", false, now); !errors.Is(err, password.ErrPasswordTooShort) {
		t.Fatalf("expected policy error, got %v", err)
	}
}

func TestLockoutStatus(t *testing.T) {
	v, _ := newTestValidator(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := v.LockoutStatus(ctx, "ghost@example.com", now); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := v.CreateAccount(ctx, "gina@example.com", "a long valid password", false, now); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	st, err := v.LockoutStatus(ctx, "gina@example.com", now)
	if err != nil {
		t.Fatalf("LockoutStatus: %v", err)
	}
	if st.Locked || st.FailedAttempts != 0 {
		t.Fatalf("unexpected status: %+v", st)
	}

	for i := 0; i < 10; i++ {
		_, _ = v.VerifyCredentials(ctx, "gina@example.com", "wrong password here", now)
	}
	st, err = v.LockoutStatus(ctx, "gina@example.com", now)
	if err != nil {
		t.Fatalf("LockoutStatus: %v", err)
	}
	if !st.Locked || st.LockedUntil == nil || st.FailedAttempts != 10 {
		t.Fatalf("expected locked status, got %+v", st)
	}
}
