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
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// DBAutoMigrate applies the embedded session schema at startup.
	DBAutoMigrate bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, LODGE_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and refresh-token hashing must be HMAC-based.
	RequireTokenHMAC bool

	MetricsEnabled bool

	// CORS for browser clients using the web refresh cookie.
	// Entries may end in ":*" to allow any port of a host.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("LODGE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("LODGE_LOG_LEVEL", "info"),
		LogFormat: EnvString("LODGE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("LODGE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LODGE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("LODGE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("LODGE_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("LODGE_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("LODGE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("LODGE_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("LODGE_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("LODGE_DB_MIN_CONNS", 0),
		DBAutoMigrate: EnvBool("LODGE_DB_AUTO_MIGRATE", false),

		ReadinessRequireDB: EnvBool("LODGE_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("LODGE_REQUIRE_TOKEN_HMAC", false),

		MetricsEnabled: EnvBool("LODGE_METRICS_ENABLED", true),

		CORSAllowedOrigins:   EnvCSV("LODGE_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("LODGE_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("LODGE_CORS_MAX_AGE_SECONDS", 600),
	}
}
