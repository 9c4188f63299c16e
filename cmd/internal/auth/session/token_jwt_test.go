package session

import (
	"errors"
	"testing"
	"time"
)

func testTokenConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = testJWTSecret
	return cfg
}

func TestHS256_IssueAndVerifyAccess(t *testing.T) {
	mgr, err := NewHS256Manager(testTokenConfig())
	if err != nil {
		t.Fatalf("NewHS256Manager: %v", err)
	}

	now := time.Now().UTC()
	acct := AccountInfo{ID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", Email: "a@example.com", Admin: true}

	tok, exp, err := mgr.IssueAccess(acct, "01HYYYYYYYYYYYYYYYYYYYYYYY", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if got, want := exp, now.Add(30*time.Minute); !got.Equal(want) {
		t.Fatalf("exp = %v, want %v", got, want)
	}

	claims, err := mgr.VerifyAccess(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.AccountID != acct.ID || claims.Email != acct.Email || !claims.Admin {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.SessionID != "01HYYYYYYYYYYYYYYYYYYYYYYY" {
		t.Fatalf("session id = %q", claims.SessionID)
	}
}

func TestHS256_VerifyAccess_Expired(t *testing.T) {
	mgr, _ := NewHS256Manager(testTokenConfig())
	now := time.Now().UTC()

	tok, _, err := mgr.IssueAccess(AccountInfo{ID: "a1"}, "s1", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	// Past expiry plus leeway.
	_, err = mgr.VerifyAccess(tok, now.Add(31*time.Minute))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestHS256_VerifyAccess_WrongKey(t *testing.T) {
	mgr1, _ := NewHS256Manager(testTokenConfig())

	cfg2 := testTokenConfig()
	cfg2.JWTSecret = "ffffffffffffffffffffffffffffffff"
	mgr2, _ := NewHS256Manager(cfg2)

	now := time.Now().UTC()
	tok, _, err := mgr1.IssueAccess(AccountInfo{ID: "a1"}, "s1", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	_, err = mgr2.VerifyAccess(tok, now)
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestHS256_VerifyAccess_Garbage(t *testing.T) {
	mgr, _ := NewHS256Manager(testTokenConfig())
	_, err := mgr.VerifyAccess("not-a-jwt", time.Now().UTC())
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestHS256_RefreshRoundTrip(t *testing.T) {
	mgr, _ := NewHS256Manager(testTokenConfig())
	now := time.Now().UTC()
	exp := now.Add(24 * time.Hour)

	wrapper, err := mgr.IssueRefresh("opaque-secret-value", now, exp)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	secret, err := mgr.VerifyRefresh(wrapper, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if secret != "opaque-secret-value" {
		t.Fatalf("secret = %q", secret)
	}

	_, err = mgr.VerifyRefresh(wrapper, exp.Add(time.Minute))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

// Token kinds must not be interchangeable.
func TestHS256_TypeDiscriminant(t *testing.T) {
	mgr, _ := NewHS256Manager(testTokenConfig())
	now := time.Now().UTC()

	access, _, err := mgr.IssueAccess(AccountInfo{ID: "a1"}, "s1", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := mgr.VerifyRefresh(access, now); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("access on refresh path: expected ErrTokenMalformed, got %v", err)
	}

	wrapper, err := mgr.IssueRefresh("secret", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := mgr.VerifyAccess(wrapper, now); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("refresh on access path: expected ErrTokenMalformed, got %v", err)
	}
}

func TestHS256_ClockSkewLeeway(t *testing.T) {
	cfg := testTokenConfig()
	cfg.ClockSkew = 30 * time.Second
	mgr, _ := NewHS256Manager(cfg)

	now := time.Now().UTC()
	tok, exp, err := mgr.IssueAccess(AccountInfo{ID: "a1"}, "s1", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	// Just past expiry but inside leeway.
	if _, err := mgr.VerifyAccess(tok, exp.Add(10*time.Second)); err != nil {
		t.Fatalf("inside leeway: %v", err)
	}
	// Past leeway.
	if _, err := mgr.VerifyAccess(tok, exp.Add(time.Minute)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("past leeway: expected ErrTokenExpired, got %v", err)
	}
}

func TestNewHS256Manager_ShortSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "too-short"
	if _, err := NewHS256Manager(cfg); err != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
