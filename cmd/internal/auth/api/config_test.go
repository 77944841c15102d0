package authapi

import (
	"net/http"
	"testing"
)

func TestLoadConfigFromEnv_CookieGuardrails(t *testing.T) {
	t.Setenv("LODGE_AUTH_REFRESH_COOKIE_NAME", "lodge_token")
	t.Setenv("LODGE_AUTH_CSRF_COOKIE_NAME", "lodge_token")
	t.Setenv("LODGE_AUTH_COOKIE_SAMESITE", "none")
	t.Setenv("LODGE_AUTH_COOKIE_SECURE", "false")

	cfg := LoadConfigFromEnv()

	if cfg.CSRFCookieName == cfg.RefreshCookieName {
		t.Fatalf("csrf cookie name must differ from refresh cookie name")
	}
	if cfg.CookieSameSite != http.SameSiteNoneMode {
		t.Fatalf("expected SameSite=None, got %v", cfg.CookieSameSite)
	}
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
}

func TestLoadConfigFromEnv_Limiter(t *testing.T) {
	t.Setenv("LODGE_AUTH_REFRESH_RPS", "0")
	t.Setenv("LODGE_AUTH_REFRESH_BURST", "-3")
	t.Setenv("LODGE_AUTH_MAX_BODY_BYTES", "abc")

	cfg := LoadConfigFromEnv()
	if cfg.RefreshRPS != 0 {
		t.Fatalf("rps=0 must be accepted, got %v", cfg.RefreshRPS)
	}
	if cfg.RefreshBurst != DefaultConfig().RefreshBurst {
		t.Fatalf("invalid burst must fall back to default, got %d", cfg.RefreshBurst)
	}
	if cfg.MaxBodyBytes != DefaultConfig().MaxBodyBytes {
		t.Fatalf("invalid body limit must fall back to default, got %d", cfg.MaxBodyBytes)
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "lax", want: http.SameSiteLaxMode},
		{in: "none", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", want: http.SameSiteLaxMode},
	}

	for _, tc := range tests {
		got := parseSameSite(tc.in)
		if got != tc.want {
			t.Fatalf("parseSameSite(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}
