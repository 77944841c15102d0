package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"lodge/cmd/internal/auth/session"
	"lodge/cmd/security/token"
)

// staticVerifier maps username to password.
type staticVerifier map[string]string

func (v staticVerifier) Verify(_ context.Context, username, password string) (string, error) {
	if pw, ok := v[username]; ok && pw == password {
		return "user-" + username, nil
	}
	return "", ErrInvalidCredentials
}

type auditRecorder struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *auditRecorder) InsertAudit(_ context.Context, ev AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.Action)
	}
	return out
}

type testServer struct {
	mux   *http.ServeMux
	audit *auditRecorder
	clock time.Time
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()

	sessCfg := session.DefaultConfig()
	sessCfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	signer, err := session.NewSigner(sessCfg, nil)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := session.NewService(sessCfg, session.NewMemoryStore(), signer, token.Hasher{}, session.WithLogger(log))

	ts := &testServer{
		mux:   http.NewServeMux(),
		audit: &auditRecorder{},
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h, err := NewHandler(log, svc, cfg,
		WithCredentialVerifier(staticVerifier{"ana": "correct horse"}),
		WithAuditSink(ts.audit),
		WithClock(func() time.Time { return ts.clock }),
	)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	h.Register(ts.mux)
	return ts
}

func testAuthConfig() Config {
	cfg := DefaultConfig()
	cfg.RefreshRPS = 0
	return cfg
}

func (ts *testServer) do(t *testing.T, path string, payload any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("json.Marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lodge-test/1.0")
	if mutate != nil {
		mutate(req)
	}

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) login(t *testing.T, device string) sessionResponse {
	t.Helper()
	rr := ts.do(t, "/auth/login", loginRequest{Username: "ana", Password: "correct horse"}, func(r *http.Request) {
		r.Header.Set("User-Agent", device)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp loginResponse
	decodeBody(t, rr, &resp)
	return resp.Session
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e errorResponse
	decodeBody(t, rr, &e)
	return e.Error.Code
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, testAuthConfig())

	got := ts.login(t, "phone")
	if got.RefreshToken == "" || got.JTI == "" {
		t.Fatalf("expected token and jti, got %+v", got)
	}
	if got.UserID != "user-ana" {
		t.Fatalf("user mismatch: %q", got.UserID)
	}

	rr := ts.do(t, "/auth/login", loginRequest{Username: "ana", Password: "nope"}, nil)
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "invalid_credentials" {
		t.Fatalf("expected 401 invalid_credentials, got %d %s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, "/auth/login", map[string]any{"username": "ana"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rr.Code)
	}

	rr = ts.do(t, "/auth/login", map[string]any{"username": "ana", "password": "x", "extra": 1}, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_json" {
		t.Fatalf("expected invalid_json for unknown field, got %d %s", rr.Code, rr.Body.String())
	}

	want := []string{"auth.login.success", "auth.login.failed"}
	if got := ts.audit.actions(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("audit mismatch: %v", got)
	}
}

func TestLogin_NoVerifierConfigured(t *testing.T) {
	sessCfg := session.DefaultConfig()
	sessCfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	signer, err := session.NewSigner(sessCfg, nil)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	svc := session.NewService(sessCfg, session.NewMemoryStore(), signer, token.Hasher{})

	h, err := NewHandler(nil, svc, testAuthConfig())
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)

	b, _ := json.Marshal(loginRequest{Username: "ana", Password: "pw"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(b)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestNewHandler_RequiresService(t *testing.T) {
	if _, err := NewHandler(nil, nil, testAuthConfig()); err == nil {
		t.Fatalf("expected error for nil session service")
	}
}

func TestRefresh_RotationAndReuse(t *testing.T) {
	ts := newTestServer(t, testAuthConfig())
	first := ts.login(t, "laptop")

	ts.clock = ts.clock.Add(time.Minute)
	rr := ts.do(t, "/auth/refresh", refreshRequest{RefreshToken: first.RefreshToken}, func(r *http.Request) {
		r.Header.Set("User-Agent", "laptop")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp refreshResponse
	decodeBody(t, rr, &resp)
	if resp.Session.RefreshToken == "" || resp.Session.RefreshToken == first.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}

	rr = ts.do(t, "/auth/refresh", refreshRequest{RefreshToken: first.RefreshToken}, nil)
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "refresh_reuse_detected" {
		t.Fatalf("expected refresh_reuse_detected, got %d %s", rr.Code, rr.Body.String())
	}

	actions := ts.audit.actions()
	if actions[len(actions)-1] != "auth.refresh.reuse_detected" {
		t.Fatalf("expected reuse audit, got %v", actions)
	}
}

func TestRefresh_ErrorCodes(t *testing.T) {
	ts := newTestServer(t, testAuthConfig())
	s := ts.login(t, "phone")

	rr := ts.do(t, "/auth/refresh", refreshRequest{RefreshToken: "garbage"}, nil)
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "invalid_token" {
		t.Fatalf("expected invalid_token, got %d %s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, "/auth/refresh", nil, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_request" {
		t.Fatalf("expected invalid_request without token, got %d %s", rr.Code, rr.Body.String())
	}

	ts.clock = ts.clock.Add(session.DefaultConfig().SessionTTL + time.Second)
	rr = ts.do(t, "/auth/refresh", refreshRequest{RefreshToken: s.RefreshToken}, nil)
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "token_expired" {
		t.Fatalf("expected token_expired, got %d %s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, "/auth/refresh", refreshRequest{RefreshToken: s.RefreshToken}, nil)
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "token_not_found" {
		t.Fatalf("expected token_not_found after expiry cleanup, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRefresh_RateLimited(t *testing.T) {
	cfg := testAuthConfig()
	cfg.RefreshRPS = 1
	cfg.RefreshBurst = 1
	ts := newTestServer(t, cfg)
	s := ts.login(t, "phone")

	rr := ts.do(t, "/auth/refresh", refreshRequest{RefreshToken: s.RefreshToken}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("first refresh status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, "/auth/refresh", refreshRequest{RefreshToken: "anything"}, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After=1, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestLogoutAndStatus(t *testing.T) {
	ts := newTestServer(t, testAuthConfig())
	s := ts.login(t, "phone")

	status := func() bool {
		rr := ts.do(t, "/auth/session/status", tokenRequest{RefreshToken: s.RefreshToken}, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status code=%d body=%s", rr.Code, rr.Body.String())
		}
		var resp statusResponse
		decodeBody(t, rr, &resp)
		return resp.Active
	}

	if !status() {
		t.Fatalf("expected active session")
	}

	for i := 0; i < 2; i++ {
		rr := ts.do(t, "/auth/logout", tokenRequest{RefreshToken: s.RefreshToken}, nil)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("logout #%d status=%d body=%s", i+1, rr.Code, rr.Body.String())
		}
	}

	if status() {
		t.Fatalf("expected inactive session after logout")
	}
}

func TestLogoutAllAndSessions(t *testing.T) {
	ts := newTestServer(t, testAuthConfig())
	phone := ts.login(t, "phone")
	ts.clock = ts.clock.Add(time.Second)
	laptop := ts.login(t, "laptop")

	rr := ts.do(t, "/auth/sessions", tokenRequest{RefreshToken: laptop.RefreshToken}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("sessions status=%d body=%s", rr.Code, rr.Body.String())
	}
	var list sessionsResponse
	decodeBody(t, rr, &list)
	if len(list.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %+v", list.Sessions)
	}
	if list.Sessions[0].Device != "phone" || list.Sessions[0].Current || !list.Sessions[1].Current {
		t.Fatalf("unexpected listing: %+v", list.Sessions)
	}

	rr = ts.do(t, "/auth/logout_all", tokenRequest{RefreshToken: laptop.RefreshToken}, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("logout_all status=%d body=%s", rr.Code, rr.Body.String())
	}

	for _, tok := range []string{phone.RefreshToken, laptop.RefreshToken} {
		rr := ts.do(t, "/auth/session/status", tokenRequest{RefreshToken: tok}, nil)
		var resp statusResponse
		decodeBody(t, rr, &resp)
		if resp.Active {
			t.Fatalf("expected all sessions revoked")
		}
	}

	rr = ts.do(t, "/auth/logout_all", tokenRequest{RefreshToken: laptop.RefreshToken}, nil)
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "refresh_reuse_detected" {
		t.Fatalf("expected revoked token to be rejected, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestDeviceHeaderWins(t *testing.T) {
	ts := newTestServer(t, testAuthConfig())
	const id = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

	rr := ts.do(t, "/auth/login", loginRequest{Username: "ana", Password: "correct horse", DeviceID: "junk"}, func(r *http.Request) {
		r.Header.Set("X-Device-ID", id)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d", rr.Code)
	}
	var resp loginResponse
	decodeBody(t, rr, &resp)

	rr = ts.do(t, "/auth/sessions", tokenRequest{RefreshToken: resp.Session.RefreshToken}, nil)
	var list sessionsResponse
	decodeBody(t, rr, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].Device != id {
		t.Fatalf("expected strong device key, got %+v", list.Sessions)
	}
}

func TestWebCookieTransport(t *testing.T) {
	ts := newTestServer(t, testAuthConfig())
	cfg := testAuthConfig()

	rr := ts.do(t, "/auth/login", loginRequest{Username: "ana", Password: "correct horse", Platform: "web"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d", rr.Code)
	}
	var resp loginResponse
	decodeBody(t, rr, &resp)
	if resp.Session.RefreshToken != "" {
		t.Fatalf("refresh token must not be in the body for web transport")
	}

	cookies := rr.Result().Cookies()
	refresh := cookieValueByName(cookies, cfg.RefreshCookieName)
	csrf := cookieValueByName(cookies, cfg.CSRFCookieName)
	if refresh == "" || csrf == "" {
		t.Fatalf("expected refresh and csrf cookies, got %v", cookies)
	}

	withCookies := func(csrfHeader string) func(*http.Request) {
		return func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: cfg.RefreshCookieName, Value: refresh})
			r.AddCookie(&http.Cookie{Name: cfg.CSRFCookieName, Value: csrf})
			if csrfHeader != "" {
				r.Header.Set(cfg.CSRFHeaderName, csrfHeader)
			}
		}
	}

	rr = ts.do(t, "/auth/refresh", nil, withCookies(""))
	if rr.Code != http.StatusForbidden || errorCode(t, rr) != "csrf_invalid" {
		t.Fatalf("expected csrf_invalid, got %d %s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, "/auth/refresh", nil, withCookies(csrf))
	if rr.Code != http.StatusOK {
		t.Fatalf("cookie refresh status=%d body=%s", rr.Code, rr.Body.String())
	}
	var refreshed refreshResponse
	decodeBody(t, rr, &refreshed)
	if refreshed.Session.RefreshToken != "" {
		t.Fatalf("refresh token must stay in the cookie")
	}
	if next := cookieValueByName(rr.Result().Cookies(), cfg.RefreshCookieName); next == "" || next == refresh {
		t.Fatalf("expected rotated refresh cookie")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, testAuthConfig())
	for _, path := range []string{"/auth/login", "/auth/refresh", "/auth/logout", "/auth/logout_all", "/auth/session/status", "/auth/sessions"} {
		rr := httptest.NewRecorder()
		ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", path, rr.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "bogus, 203.0.113.7, 10.0.0.2")

	if got := clientIP(req, false); got.String() != "10.0.0.1" {
		t.Fatalf("untrusted proxy: expected remote addr, got %v", got)
	}
	if got := clientIP(req, true); got.String() != "203.0.113.7" {
		t.Fatalf("trusted proxy: expected first valid forwarded ip, got %v", got)
	}
}

func cookieValueByName(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
