package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminants carried in the "typ" claim. An access token
// presented on the refresh path (or vice versa) fails as malformed.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccountInfo is the minimal account view embedded in access tokens.
type AccountInfo struct {
	ID    string
	Email string
	Admin bool
}

// AccessClaims is the identity envelope propagated across HTTP.
// Validity is signature + expiry only; holders are never checked against
// the session store.
type AccessClaims struct {
	AccountID string
	Email     string
	Admin     bool
	SessionID string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager issues and verifies the two token kinds.
type TokenManager interface {
	IssueAccess(acct AccountInfo, sessionID string, now time.Time) (token string, exp time.Time, err error)
	VerifyAccess(token string, now time.Time) (AccessClaims, error)

	// IssueRefresh wraps an opaque session secret in a signed envelope
	// whose expiry matches the session row.
	IssueRefresh(secret string, now, exp time.Time) (string, error)
	// VerifyRefresh validates the envelope and returns the embedded secret.
	// The row looked up by the secret's hash remains the authority on
	// revocation; the signature only prevents tampering.
	VerifyRefresh(wrapper string, now time.Time) (secret string, err error)
}

type accessJWTClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Admin     bool   `json:"adm"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
}

type refreshJWTClaims struct {
	jwt.RegisteredClaims
	Secret    string `json:"sid"`
	TokenType string `json:"typ"`
}

type hs256Manager struct {
	issuer    string
	secret    []byte
	accessTTL time.Duration
	clockSkew time.Duration
}

// NewHS256Manager builds a TokenManager signing with HMAC-SHA256.
//
// It enforces issuer, expiry, and the "typ" discriminant on both token
// kinds. Clock skew is applied as parse leeway to tolerate minor clock
// differences between hosts.
func NewHS256Manager(cfg Config) (TokenManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, ErrConfig
	}
	return &hs256Manager{
		issuer:    cfg.Issuer,
		secret:    []byte(cfg.JWTSecret),
		accessTTL: cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
	}, nil
}

func (m *hs256Manager) IssueAccess(acct AccountInfo, sessionID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.accessTTL)

	claims := accessJWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:     acct.Email,
		Admin:     acct.Admin,
		SessionID: sessionID,
		TokenType: tokenTypeAccess,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *hs256Manager) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	var claims accessJWTClaims
	if err := m.parse(token, now, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return AccessClaims{}, ErrTokenMalformed
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return AccessClaims{}, ErrTokenMalformed
	}

	out := AccessClaims{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Admin:     claims.Admin,
		SessionID: claims.SessionID,
		Issuer:    claims.Issuer,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (m *hs256Manager) IssueRefresh(secret string, now, exp time.Time) (string, error) {
	claims := refreshJWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Secret:    secret,
		TokenType: tokenTypeRefresh,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *hs256Manager) VerifyRefresh(wrapper string, now time.Time) (string, error) {
	var claims refreshJWTClaims
	if err := m.parse(wrapper, now, &claims); err != nil {
		return "", err
	}
	if claims.TokenType != tokenTypeRefresh {
		return "", ErrTokenMalformed
	}
	if claims.Secret == "" {
		return "", ErrTokenMalformed
	}
	return claims.Secret, nil
}

func (m *hs256Manager) parse(token string, now time.Time, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}
	return nil
}
