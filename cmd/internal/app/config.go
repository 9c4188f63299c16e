package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless the database is reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, KEYLINE_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and
	// refresh-secret hashing must be HMAC-based.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("KEYLINE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("KEYLINE_LOG_LEVEL", "info"),
		LogFormat: EnvString("KEYLINE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("KEYLINE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("KEYLINE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("KEYLINE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("KEYLINE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("KEYLINE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("KEYLINE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("KEYLINE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("KEYLINE_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("KEYLINE_READINESS_REQUIRE_DB", true),

		RequireTokenHMAC: EnvBool("KEYLINE_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvStringSlice("KEYLINE_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("KEYLINE_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("KEYLINE_CORS_MAX_AGE_SECONDS", 600),
	}
}
