package session

import (
	"context"
	"time"
)

// enforceDeviceLimit revokes the user's oldest active sessions until a new
// one fits under Config.MaxDevices. The caller holds the user lock and has
// already revoked the sessions being replaced.
//
// Order is created_at ASC then id ASC; ids are monotonic ULIDs so ties break
// by insertion order.
func (s *Service) enforceDeviceLimit(ctx context.Context, tx Tx, userID string, now time.Time) ([]Record, error) {
	active, err := tx.ActiveForUserForUpdate(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	limit := s.cfg.MaxDevices
	if limit < 1 {
		limit = 1
	}

	var evicted []Record
	for len(active) >= limit {
		oldest := active[0]
		active = active[1:]

		if _, err := tx.Revoke(ctx, []string{oldest.ID}, now); err != nil {
			return nil, err
		}
		at := now
		oldest.Revoked = true
		oldest.RevokedAt = &at
		evicted = append(evicted, oldest)
	}
	return evicted, nil
}
