package authapi

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is one security-relevant auth action.
type AuditEvent struct {
	Action    string
	UserID    string
	JTI       string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
	At        time.Time
}

// AuditSink persists audit events.
type AuditSink interface {
	InsertAudit(ctx context.Context, ev AuditEvent) error
}

// PostgresAuditSink writes audit events to lodge.audit_log.
type PostgresAuditSink struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditSink returns an AuditSink on pool.
func NewPostgresAuditSink(pool *pgxpool.Pool) *PostgresAuditSink {
	return &PostgresAuditSink{pool: pool}
}

// InsertAudit implements AuditSink.
func (s *PostgresAuditSink) InsertAudit(ctx context.Context, ev AuditEvent) error {
	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			m := string(b)
			metaVal = &m
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO lodge.audit_log (
			user_id, jti, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, trimOrNil(ev.UserID), trimOrNil(ev.JTI), ev.Action, ev.At, ipVal, trimOrNil(ev.UserAgent), metaVal)
	return err
}

func (h *Handler) auditLoginFailed(ctx context.Context, ip net.IP, ua, username, reason string) {
	h.insertAudit(ctx, AuditEvent{Action: "auth.login.failed", IP: ip, UserAgent: ua, Meta: map[string]any{
		"username": username,
		"reason":   reason,
	}})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID, jti string, ip net.IP, ua string, evicted int) {
	var meta map[string]any
	if evicted > 0 {
		meta = map[string]any{"evicted": evicted}
	}
	h.insertAudit(ctx, AuditEvent{Action: "auth.login.success", UserID: userID, JTI: jti, IP: ip, UserAgent: ua, Meta: meta})
}

func (h *Handler) auditRefreshSuccess(ctx context.Context, userID, jti string, ip net.IP, ua string) {
	h.insertAudit(ctx, AuditEvent{Action: "auth.refresh.success", UserID: userID, JTI: jti, IP: ip, UserAgent: ua})
}

func (h *Handler) auditRefreshReuse(ctx context.Context, ip net.IP, ua string) {
	h.insertAudit(ctx, AuditEvent{Action: "auth.refresh.reuse_detected", IP: ip, UserAgent: ua})
}

func (h *Handler) auditRefreshRateLimited(ctx context.Context, ip net.IP, ua string, retryAfter time.Duration) {
	h.insertAudit(ctx, AuditEvent{Action: "auth.refresh.rate_limited", IP: ip, UserAgent: ua, Meta: map[string]any{
		"retry_after_s": int64(retryAfter.Seconds()),
	}})
}

func (h *Handler) auditLogout(ctx context.Context, ip net.IP, ua string) {
	h.insertAudit(ctx, AuditEvent{Action: "auth.logout", IP: ip, UserAgent: ua})
}

func (h *Handler) auditLogoutAll(ctx context.Context, userID string, ip net.IP, ua string) {
	h.insertAudit(ctx, AuditEvent{Action: "auth.logout_all", UserID: userID, IP: ip, UserAgent: ua})
}

func (h *Handler) insertAudit(ctx context.Context, ev AuditEvent) {
	if h == nil || h.audit == nil {
		return
	}

	ev.Action = strings.TrimSpace(ev.Action)
	if ev.Action == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = h.now().UTC()
	}

	if err := h.audit.InsertAudit(ctx, ev); err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", ev.Action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
