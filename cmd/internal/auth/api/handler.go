package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"lodge/cmd/internal/auth/session"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Service
	verifier CredentialVerifier
	audit    AuditSink
	limiter  *clientLimiter

	now func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithCredentialVerifier overrides the default verifier, which rejects all logins.
func WithCredentialVerifier(v CredentialVerifier) HandlerOption {
	return func(h *Handler) {
		if h == nil || v == nil {
			return
		}
		h.verifier = v
	}
}

// WithAuditSink enables persistent audit events.
func WithAuditSink(sink AuditSink) HandlerOption {
	return func(h *Handler) {
		if h == nil || sink == nil {
			return
		}
		h.audit = sink
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, sessions *session.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		verifier: NoopCredentialVerifier{},
		limiter:  newClientLimiter(cfg.RefreshRPS, cfg.RefreshBurst),
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/logout_all", h.handleLogoutAll)
	mux.HandleFunc("/auth/session/status", h.handleStatus)
	mux.HandleFunc("/auth/sessions", h.handleSessions)
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	userID, err := h.verifier.Verify(ctx, username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			h.auditLoginFailed(ctx, ip, ua, username, "invalid_credentials")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		case errors.Is(err, ErrVerifierUnavailable):
			writeError(w, http.StatusServiceUnavailable, "login_unavailable", "login is not configured")
		default:
			h.log.Error("auth.login.verify.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		}
		return
	}

	issued, err := h.sessions.IssueSession(ctx, now, userID, h.deviceInputs(r, req.DeviceID), req.RememberMe)
	if err != nil {
		if writeSessionError(w, err) {
			return
		}
		h.log.Error("auth.login.issue_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLoginSuccess(ctx, userID, issued.Record.JTI, ip, ua, len(issued.Evicted))

	resp := toSessionResponse(issued)
	if h.shouldUseWebCookieTransport(req.Platform) {
		if _, err := h.setWebSessionCookies(w, issued.Token, issued.Record.ExpiresAt); err != nil {
			h.log.Error("auth.login.web_cookie.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		resp.RefreshToken = ""
	}

	writeJSON(w, http.StatusOK, loginResponse{Session: resp})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	tok, fromCookie, ok := h.presentedToken(w, r, req.RefreshToken)
	if !ok {
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if allowed, retryAfter := h.limiter.allow(ipKey(ip), now); !allowed {
		h.auditRefreshRateLimited(ctx, ip, ua, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	issued, err := h.sessions.RotateSession(ctx, now, tok, h.deviceInputs(r, req.DeviceID))
	if err != nil {
		if errors.Is(err, session.ErrReuseDetected) {
			h.auditRefreshReuse(ctx, ip, ua)
		}
		if writeSessionError(w, err) {
			if fromCookie {
				h.clearWebSessionCookies(w)
			}
			return
		}
		h.log.Error("auth.refresh.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditRefreshSuccess(ctx, issued.Record.UserID, issued.Record.JTI, ip, ua)

	resp := toSessionResponse(issued)
	if fromCookie || h.shouldUseWebCookieTransport(req.Platform) {
		if _, err := h.setWebSessionCookies(w, issued.Token, issued.Record.ExpiresAt); err != nil {
			h.log.Error("auth.refresh.web_cookie.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		resp.RefreshToken = ""
	}

	writeJSON(w, http.StatusOK, refreshResponse{Session: resp})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	tok, _, ok := h.presentedToken(w, r, req.RefreshToken)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.sessions.RevokeSession(ctx, h.now().UTC(), tok); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLogout(ctx, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rec, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.sessions.RevokeAllSessions(ctx, h.now().UTC(), rec.UserID); err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLogoutAll(ctx, rec.UserID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	tok, _, ok := h.presentedToken(w, r, req.RefreshToken)
	if !ok {
		return
	}

	active, err := h.sessions.IsSessionValid(r.Context(), h.now().UTC(), tok)
	if err != nil {
		h.log.Error("auth.session.status.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Active: active})
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rec, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	recs, err := h.sessions.ListActiveSessions(r.Context(), h.now().UTC(), rec.UserID)
	if err != nil {
		h.log.Error("auth.sessions.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: toSessionInfos(recs, rec.JTI)})
}

// ---- helpers ----

// requireSession authenticates the caller by the refresh token it presents.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (session.Record, bool) {
	var req tokenRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return session.Record{}, false
	}
	tok, _, ok := h.presentedToken(w, r, req.RefreshToken)
	if !ok {
		return session.Record{}, false
	}

	rec, err := h.sessions.Authenticate(r.Context(), h.now().UTC(), tok)
	if err != nil {
		if writeSessionError(w, err) {
			return session.Record{}, false
		}
		h.log.Error("auth.session.authenticate.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return session.Record{}, false
	}
	return rec, true
}

// presentedToken returns the refresh token from the body, falling back to
// the web cookie. A cookie-borne token requires a valid CSRF double-submit.
func (h *Handler) presentedToken(w http.ResponseWriter, r *http.Request, bodyToken string) (string, bool, bool) {
	if tok := strings.TrimSpace(bodyToken); tok != "" {
		return tok, false, true
	}
	tok, ok := h.refreshTokenFromCookie(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return "", false, false
	}
	if !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return "", false, false
	}
	return tok, true, true
}

// deviceInputs prefers the device header over the body field.
func (h *Handler) deviceInputs(r *http.Request, bodyDeviceID string) session.DeviceInputs {
	id := ""
	if h.cfg.DeviceHeader != "" {
		id = strings.TrimSpace(r.Header.Get(h.cfg.DeviceHeader))
	}
	if id == "" {
		id = strings.TrimSpace(bodyDeviceID)
	}
	return session.DeviceInputs{DeviceID: id, UserAgent: r.UserAgent()}
}

func ipKey(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
