package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lodge/cmd/security/token"
)

// RotateSession exchanges a valid refresh token for a fresh one.
//
// The presented record and every other active record of the resolved device
// are revoked, the device cap is enforced, a successor chained to the most
// recent revoked record is inserted and the user's older revoked history is
// pruned. Revoked records that are still the parent of an active record
// survive the prune, so every live lineage keeps its reuse tripwire.
// All of it commits atomically or not at all.
//
// A revoked presented token yields ErrReuseDetected. An expired one is
// deleted and yields ErrTokenExpired. Both outcomes are committed.
func (s *Service) RotateSession(ctx context.Context, now time.Time, presented string, in DeviceInputs) (Issued, error) {
	issued, err := s.rotate(ctx, now, presented, in)
	if err != nil {
		s.metrics.incFailure(err)
		switch {
		case errors.Is(err, ErrReuseDetected):
			// logged by rotate with the owning user
		case errorKind(err) == "internal":
			s.log.Error("session.rotate.fail", "err", err)
		default:
			s.log.Debug("session.rotate.reject", "kind", errorKind(err))
		}
		return Issued{}, err
	}

	s.metrics.incRotated()
	s.metrics.addEvicted(len(issued.Evicted))
	s.log.Info("session.rotate",
		"user_id", issued.Record.UserID,
		"jti", issued.Record.JTI,
		"parent_jti", deref(issued.Record.RotatedFrom),
		"evicted", len(issued.Evicted),
	)
	return issued, nil
}

func (s *Service) rotate(ctx context.Context, now time.Time, presented string, in DeviceInputs) (Issued, error) {
	presented = strings.TrimSpace(presented)
	claims, err := s.signer.Parse(presented)
	if err != nil {
		return Issued{}, ErrInvalidToken
	}
	digest := s.hasher.Digest(presented)

	// Unlocked read to learn the owner, so the user lock is taken before any row lock.
	owner, err := s.store.GetByJTI(ctx, claims.JTI)
	if err != nil {
		return Issued{}, err
	}
	if owner.UserID != claims.Subject || !digestMatches(owner.TokenHash, digest) {
		return Issued{}, ErrInvalidToken
	}

	var (
		issued  Issued
		outcome error
		revoked int64
		pruned  int64
	)
	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockUser(ctx, owner.UserID); err != nil {
			return err
		}
		cur, err := tx.GetByJTIForUpdate(ctx, claims.JTI)
		if err != nil {
			return err
		}

		if cur.Revoked {
			outcome = ErrReuseDetected
			if s.cfg.RevokeAllOnReuse {
				revoked, err = revokeAllActive(ctx, tx, cur.UserID, now)
				return err
			}
			return nil
		}
		if !cur.ExpiresAt.After(now) {
			outcome = ErrTokenExpired
			return tx.Delete(ctx, cur.ID)
		}

		dev := s.rotationDevice(cur, in)
		if s.cfg.RequireStrongDevice && !dev.Strong {
			outcome = ErrDeviceKeyUnavailable
			return nil
		}

		matching, err := tx.ActiveForDeviceForUpdate(ctx, cur.UserID, dev.Value, now)
		if err != nil {
			return err
		}
		parent := newestOf(cur, matching)

		ids := recordIDs(matching)
		if !containsID(matching, cur.ID) {
			ids = append(ids, cur.ID)
		}
		if revoked, err = tx.Revoke(ctx, ids, now); err != nil {
			return err
		}

		evicted, err := s.enforceDeviceLimit(ctx, tx, cur.UserID, now)
		if err != nil {
			return err
		}

		parentJTI := parent.JTI
		issued, err = s.insertSuccessor(ctx, tx, now, cur.UserID, dev, cur.RememberMe, &parentJTI)
		if err != nil {
			return err
		}
		issued.Evicted = evicted

		pruned, err = tx.PruneRevoked(ctx, cur.UserID, []string{issued.Record.JTI, parentJTI, cur.JTI})
		return err
	})
	if err != nil {
		return Issued{}, fmt.Errorf("session: rotate: %w", err)
	}

	switch {
	case errors.Is(outcome, ErrReuseDetected):
		s.metrics.addRevoked("reuse", revoked)
		s.log.Warn("session.rotate.reuse_detected", "user_id", owner.UserID, "jti", claims.JTI, "revoked_all", s.cfg.RevokeAllOnReuse, "revoked", revoked)
		return Issued{}, outcome
	case outcome != nil:
		return Issued{}, outcome
	}

	s.metrics.addRevoked("rotate", revoked)
	s.metrics.addReaped("pruned", pruned)
	return issued, nil
}

// rotationDevice picks the device key for a successor. A strong key from the
// request wins, then a strong stored key, then request metadata, then the
// stored key, then UnknownDeviceKey for legacy rows.
func (s *Service) rotationDevice(cur Record, in DeviceInputs) DeviceKey {
	resolved := s.resolveDevice("rotate", in)
	stored := cur.Device()
	storedID, storedStrong := strictDeviceID(stored)

	switch {
	case resolved.Strong:
		return resolved
	case storedStrong:
		return DeviceKey{Value: storedID, Strong: true}
	case !in.Empty():
		return resolved
	case stored != "":
		return DeviceKey{Value: stored}
	default:
		return DeviceKey{Value: UnknownDeviceKey}
	}
}

// newestOf returns the most recently created record among cur and others.
func newestOf(cur Record, others []Record) Record {
	best := cur
	for _, r := range others {
		if r.CreatedAt.After(best.CreatedAt) || (r.CreatedAt.Equal(best.CreatedAt) && r.ID > best.ID) {
			best = r
		}
	}
	return best
}

func containsID(rs []Record, id string) bool {
	for _, r := range rs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func digestMatches(stored, computed string) bool {
	return token.EqualHex64(stored, computed)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
