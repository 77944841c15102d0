package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// SignerKind selects the refresh-token signer implementation.
type SignerKind string

const (
	// SignerPaseto signs refresh tokens as PASETO v4.public (Ed25519).
	SignerPaseto SignerKind = "paseto"
	// SignerJWT signs refresh tokens as HS256 JWTs.
	SignerJWT SignerKind = "jwt"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls refresh lifetimes per lifetime class, the device cap,
// device-key resolution, the signer, and the background reaper.
type Config struct {
	// Issuer is written to and enforced on every refresh token.
	Issuer string

	// Refresh token lifetimes per lifetime class.
	SessionTTL    time.Duration
	RememberMeTTL time.Duration

	// MaxDevices caps concurrently active devices per user.
	MaxDevices int

	// UserAgentMaxLen bounds weak (user-agent) device keys, in bytes.
	UserAgentMaxLen int

	Signer SignerKind

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key (SignerPaseto).
	PasetoV4SecretKeyHex string

	// JWTSecret is the HS256 key (SignerJWT). When empty the key is derived
	// from the token HMAC master key by the caller.
	JWTSecret string

	// RevokedRetention is how long revoked rows are kept for audit before
	// the reaper deletes them.
	RevokedRetention time.Duration

	// ReapInterval is the background sweep period.
	ReapInterval time.Duration

	// RequireStrongDevice rejects issue/rotate when only a weak device key
	// can be resolved.
	RequireStrongDevice bool

	// RevokeAllOnReuse revokes every active session of the user when reuse
	// is detected, in addition to rejecting the replay.
	RevokeAllOnReuse bool
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:           "lodge",
		SessionTTL:       24 * time.Hour,
		RememberMeTTL:    30 * 24 * time.Hour,
		MaxDevices:       3,
		UserAgentMaxLen:  255,
		Signer:           SignerPaseto,
		RevokedRetention: 30 * 24 * time.Hour,
		ReapInterval:     10 * time.Minute,
	}
}

// TTL returns the lifetime for class.
func (c Config) TTL(class LifetimeClass) time.Duration {
	if class == LifetimeRememberMe {
		return c.RememberMeTTL
	}
	return c.SessionTTL
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required (depending on LODGE_SESSION_SIGNER):
//   - LODGE_PASETO_V4_SECRET_KEY_HEX (paseto, default)
//   - LODGE_JWT_SECRET or LODGE_TOKEN_HMAC_KEY (jwt)
//
// Optional (durations must be valid Go duration strings):
//   - LODGE_SESSION_ISSUER
//   - LODGE_SESSION_TTL
//   - LODGE_SESSION_TTL_REMEMBER_ME
//   - LODGE_SESSION_MAX_DEVICES
//   - LODGE_SESSION_UA_MAX_LEN
//   - LODGE_SESSION_REVOKED_RETENTION
//   - LODGE_SESSION_REAP_INTERVAL
//   - LODGE_SESSION_REQUIRE_STRONG_DEVICE
//   - LODGE_SESSION_REVOKE_ALL_ON_REUSE
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LODGE_SESSION_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LODGE_SESSION_TTL", &cfg.SessionTTL},
		{"LODGE_SESSION_TTL_REMEMBER_ME", &cfg.RememberMeTTL},
		{"LODGE_SESSION_REVOKED_RETENTION", &cfg.RevokedRetention},
		{"LODGE_SESSION_REAP_INTERVAL", &cfg.ReapInterval},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	if v := os.Getenv("LODGE_SESSION_MAX_DEVICES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return Config{}, ErrConfig
		}
		cfg.MaxDevices = n
	}

	if v := os.Getenv("LODGE_SESSION_UA_MAX_LEN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 4096 {
			return Config{}, ErrConfig
		}
		cfg.UserAgentMaxLen = n
	}

	for key, dst := range map[string]*bool{
		"LODGE_SESSION_REQUIRE_STRONG_DEVICE": &cfg.RequireStrongDevice,
		"LODGE_SESSION_REVOKE_ALL_ON_REUSE":   &cfg.RevokeAllOnReuse,
	} {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		*dst = b
	}

	switch SignerKind(strings.ToLower(strings.TrimSpace(os.Getenv("LODGE_SESSION_SIGNER")))) {
	case "", SignerPaseto:
		cfg.Signer = SignerPaseto
		cfg.PasetoV4SecretKeyHex = os.Getenv("LODGE_PASETO_V4_SECRET_KEY_HEX")
		if cfg.PasetoV4SecretKeyHex == "" {
			return Config{}, ErrConfig
		}
	case SignerJWT:
		cfg.Signer = SignerJWT
		cfg.JWTSecret = strings.TrimSpace(os.Getenv("LODGE_JWT_SECRET"))
		if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
			return Config{}, ErrConfig
		}
	default:
		return Config{}, ErrConfig
	}

	// Invariant: "remember me" must not be shorter than a plain session.
	if cfg.RememberMeTTL < cfg.SessionTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
