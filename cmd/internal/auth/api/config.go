package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// DeviceHeader carries the client's device identifier.
	DeviceHeader string

	// RefreshRPS and RefreshBurst bound /auth/refresh per client IP.
	// RefreshRPS <= 0 disables the limiter.
	RefreshRPS   float64
	RefreshBurst int

	// Web refresh-token transport (HttpOnly cookie + double-submit CSRF).
	WebRefreshCookieEnabled bool
	RefreshCookieName       string
	CSRFCookieName          string
	CSRFHeaderName          string
	CookiePath              string
	CookieDomain            string
	CookieSecure            bool
	CookieSameSite          http.SameSite
}

// DefaultConfig returns the auth API defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:            1 << 20, // 1 MiB
		DeviceHeader:            "X-Device-ID",
		RefreshRPS:              1,
		RefreshBurst:            5,
		WebRefreshCookieEnabled: true,
		RefreshCookieName:       "lodge_refresh_token",
		CSRFCookieName:          "lodge_csrf_token",
		CSRFHeaderName:          "X-CSRF-Token",
		CookiePath:              "/auth",
		CookieSecure:            true,
		CookieSameSite:          http.SameSiteLaxMode,
	}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		TrustProxy:              envBool("LODGE_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:            envInt64("LODGE_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		DeviceHeader:            envString("LODGE_AUTH_DEVICE_HEADER", def.DeviceHeader),
		RefreshRPS:              envFloat("LODGE_AUTH_REFRESH_RPS", def.RefreshRPS),
		RefreshBurst:            envInt("LODGE_AUTH_REFRESH_BURST", def.RefreshBurst),
		WebRefreshCookieEnabled: envBool("LODGE_AUTH_WEB_REFRESH_COOKIE", def.WebRefreshCookieEnabled),
		RefreshCookieName:       envString("LODGE_AUTH_REFRESH_COOKIE_NAME", def.RefreshCookieName),
		CSRFCookieName:          envString("LODGE_AUTH_CSRF_COOKIE_NAME", def.CSRFCookieName),
		CSRFHeaderName:          envString("LODGE_AUTH_CSRF_HEADER_NAME", def.CSRFHeaderName),
		CookiePath:              envString("LODGE_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:            strings.TrimSpace(os.Getenv("LODGE_AUTH_COOKIE_DOMAIN")),
		CookieSecure:            envBool("LODGE_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite:          parseSameSite(envString("LODGE_AUTH_COOKIE_SAMESITE", "lax")),
	}

	// Browsers drop SameSite=None cookies without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if cfg.CSRFCookieName == cfg.RefreshCookieName {
		cfg.CSRFCookieName = cfg.RefreshCookieName + "_csrf"
	}

	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// envFloat accepts 0 so the limiter can be switched off.
func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}
