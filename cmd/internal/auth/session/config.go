package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls access-token TTL, the two refresh lifetime classes,
// clock skew tolerance, refresh entropy size, and the JWT signing secret.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of issued tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTL is the session lifetime for ordinary logins.
	// RefreshTTLRemember applies when the client asked to be remembered;
	// the class is persisted on the session row and inherited by every
	// rotation successor.
	RefreshTTL         time.Duration
	RefreshTTLRemember time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RefreshTokenBytes defines the number of random bytes used
	// to generate opaque refresh secrets.
	RefreshTokenBytes int

	// JWTSecret is the HS256 signing key for access tokens and refresh
	// wrappers. Minimum 32 bytes.
	JWTSecret string
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:             "keyline",
		AccessTokenTTL:     30 * time.Minute,
		RefreshTTL:         24 * time.Hour,
		RefreshTTLRemember: 30 * 24 * time.Hour,
		ClockSkew:          30 * time.Second,
		RefreshTokenBytes:  32,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - KEYLINE_JWT_SECRET (>= 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - KEYLINE_AUTH_ISSUER
//   - KEYLINE_AUTH_ACCESS_TTL
//   - KEYLINE_AUTH_REFRESH_TTL
//   - KEYLINE_AUTH_REFRESH_TTL_REMEMBER
//   - KEYLINE_AUTH_CLOCK_SKEW
//   - KEYLINE_AUTH_REFRESH_TOKEN_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("KEYLINE_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("KEYLINE_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("KEYLINE_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	if v := os.Getenv("KEYLINE_AUTH_REFRESH_TTL_REMEMBER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTLRemember = d
	}

	if v := os.Getenv("KEYLINE_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("KEYLINE_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	cfg.JWTSecret = os.Getenv("KEYLINE_JWT_SECRET")
	if len(cfg.JWTSecret) < 32 {
		return Config{}, ErrConfig
	}

	// Invariant: the remember-me class must not be shorter than the default.
	if cfg.RefreshTTLRemember < cfg.RefreshTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
