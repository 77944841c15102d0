package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lodge/cmd/internal/ids"
)

// Hasher maps a token string to the digest persisted for it.
type Hasher interface {
	Digest(token string) string
}

// Service implements the session operations exposed to the HTTP layer.
//
// It issues sessions, rotates refresh tokens with reuse detection, enforces
// the per-user device cap and handles revocation. Every mutation runs in a
// single Store transaction under the per-user lock.
type Service struct {
	cfg     Config
	store   Store
	signer  Signer
	hasher  Hasher
	log     *slog.Logger
	metrics *Metrics
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	// Token is the refresh token string. It is returned once and never stored.
	Token  string
	Record Record

	// Evicted lists sessions revoked by the device cap in the same transaction.
	Evicted []Record
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, signer Signer, hasher Hasher, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		store:  store,
		signer: signer,
		hasher: hasher,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// IssueSession creates a new root refresh token for (userID, device).
//
// Any active session of the same device is revoked first, then the device
// cap is enforced, so the insert never breaks either invariant.
func (s *Service) IssueSession(ctx context.Context, now time.Time, userID string, in DeviceInputs, rememberMe bool) (Issued, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Issued{}, ErrInvalidInput
	}

	dev := s.resolveDevice("issue", in)
	if s.cfg.RequireStrongDevice && !dev.Strong {
		return Issued{}, ErrDeviceKeyUnavailable
	}

	var (
		issued   Issued
		replaced int64
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}

		same, err := tx.ActiveForDeviceForUpdate(ctx, userID, dev.Value, now)
		if err != nil {
			return err
		}
		if replaced, err = tx.Revoke(ctx, recordIDs(same), now); err != nil {
			return err
		}

		evicted, err := s.enforceDeviceLimit(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		issued, err = s.insertSuccessor(ctx, tx, now, userID, dev, rememberMe, nil)
		if err != nil {
			return err
		}
		issued.Evicted = evicted
		return nil
	})
	if err != nil {
		return Issued{}, fmt.Errorf("session: issue: %w", err)
	}

	s.metrics.incIssued()
	s.metrics.addRevoked("relogin", replaced)
	s.metrics.addEvicted(len(issued.Evicted))
	s.log.Info("session.issue",
		"user_id", userID,
		"jti", issued.Record.JTI,
		"device_strong", dev.Strong,
		"remember_me", rememberMe,
		"replaced", replaced,
		"evicted", len(issued.Evicted),
	)
	for _, ev := range issued.Evicted {
		s.log.Info("session.evicted", "user_id", userID, "jti", ev.JTI, "created_at", ev.CreatedAt)
	}

	return issued, nil
}

// RevokeSession revokes the session of tok (logout). Unknown or already
// revoked tokens are a no-op.
func (s *Service) RevokeSession(ctx context.Context, now time.Time, tok string) error {
	tok, ok := sanitizeToken(tok)
	if !ok {
		return nil
	}
	digest := s.hasher.Digest(tok)

	rec, err := s.store.GetByTokenHash(ctx, digest)
	if errors.Is(err, ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	if rec.Revoked {
		return nil
	}

	var n int64
	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockUser(ctx, rec.UserID); err != nil {
			return err
		}
		cur, err := tx.GetByTokenHashForUpdate(ctx, digest)
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		n, err = tx.Revoke(ctx, []string{cur.ID}, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}

	s.metrics.addRevoked("logout", n)
	if n > 0 {
		s.log.Info("session.revoke", "user_id", rec.UserID, "jti", rec.JTI)
	}
	return nil
}

// RevokeAllSessions revokes every active session of userID (logout everywhere).
func (s *Service) RevokeAllSessions(ctx context.Context, now time.Time, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidInput
	}

	var n int64
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		n, err = revokeAllActive(ctx, tx, userID, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("session: revoke all: %w", err)
	}

	s.metrics.addRevoked("logout_all", n)
	s.log.Info("session.revoke_all", "user_id", userID, "revoked", n)
	return nil
}

// IsSessionValid reports whether tok belongs to a stored, unrevoked,
// unexpired session. It takes no locks.
func (s *Service) IsSessionValid(ctx context.Context, now time.Time, tok string) (bool, error) {
	tok, ok := sanitizeToken(tok)
	if !ok {
		return false, nil
	}
	rec, err := s.store.GetByTokenHash(ctx, s.hasher.Digest(tok))
	if errors.Is(err, ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Active(now), nil
}

// Authenticate verifies tok and returns its active record without rotating it.
// It is used by endpoints that act on behalf of the token's owner.
func (s *Service) Authenticate(ctx context.Context, now time.Time, tok string) (Record, error) {
	claims, err := s.signer.Parse(tok)
	if err != nil {
		return Record{}, ErrInvalidToken
	}
	rec, err := s.store.GetByJTI(ctx, claims.JTI)
	if err != nil {
		return Record{}, err
	}
	if rec.UserID != claims.Subject || !digestMatches(rec.TokenHash, s.hasher.Digest(strings.TrimSpace(tok))) {
		return Record{}, ErrInvalidToken
	}
	if rec.Revoked {
		return Record{}, ErrReuseDetected
	}
	if !rec.ExpiresAt.After(now) {
		return Record{}, ErrTokenExpired
	}
	return rec, nil
}

// ListActiveSessions returns userID's active sessions, oldest first.
func (s *Service) ListActiveSessions(ctx context.Context, now time.Time, userID string) ([]Record, error) {
	return s.store.ListActive(ctx, userID, now)
}

// ReapExpired deletes every record that expired before now.
func (s *Service) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.ReapExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("session: reap expired: %w", err)
	}
	s.metrics.addReaped("expired", n)
	return n, nil
}

// ReapOldRevoked deletes revoked records whose revocation is older than cutoff.
func (s *Service) ReapOldRevoked(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.store.ReapRevokedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("session: reap revoked: %w", err)
	}
	s.metrics.addReaped("revoked", n)
	return n, nil
}

// insertSuccessor mints a token for userID and stores its record.
// parentJTI is nil for root records.
func (s *Service) insertSuccessor(ctx context.Context, tx Tx, now time.Time, userID string, dev DeviceKey, rememberMe bool, parentJTI *string) (Issued, error) {
	minted, err := s.signer.Mint(userID, lifetimeFor(rememberMe), now)
	if err != nil {
		return Issued{}, err
	}
	id, err := ids.New(now)
	if err != nil {
		return Issued{}, err
	}

	deviceKey := dev.Value
	rec := Record{
		ID:          id,
		TokenHash:   s.hasher.Digest(minted.Token),
		JTI:         minted.Claims.JTI,
		UserID:      userID,
		RotatedFrom: parentJTI,
		RememberMe:  rememberMe,
		CreatedAt:   now,
		ExpiresAt:   minted.Claims.ExpiresAt,
		DeviceKey:   &deviceKey,
	}
	if err := tx.Insert(ctx, rec); err != nil {
		return Issued{}, err
	}
	return Issued{Token: minted.Token, Record: rec}, nil
}

func (s *Service) resolveDevice(op string, in DeviceInputs) DeviceKey {
	dev := ResolveDevice(in, s.cfg.UserAgentMaxLen)
	if !dev.Strong {
		s.metrics.incWeakDevice(op)
		s.log.Debug("session.device.weak_key", "op", op, "reason", ErrDeviceKeyUnavailable.Error())
	}
	return dev
}

func revokeAllActive(ctx context.Context, tx Tx, userID string, now time.Time) (int64, error) {
	if err := tx.LockUser(ctx, userID); err != nil {
		return 0, err
	}
	active, err := tx.ActiveForUserForUpdate(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	return tx.Revoke(ctx, recordIDs(active), now)
}

func recordIDs(rs []Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}
