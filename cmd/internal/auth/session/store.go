package session

import (
	"context"
	"time"
)

// Record mirrors the lodge.refresh_tokens row: one issued refresh credential.
type Record struct {
	ID        string
	TokenHash string
	JTI       string
	UserID    string

	Revoked   bool
	RevokedAt *time.Time

	// RotatedFrom is the jti of the record this one superseded (nil for roots).
	RotatedFrom *string

	RememberMe bool
	CreatedAt  time.Time
	ExpiresAt  time.Time

	// DeviceKey is nil only for legacy rows.
	DeviceKey *string
}

// Active reports whether r is neither revoked nor expired at now.
func (r Record) Active(now time.Time) bool {
	return !r.Revoked && r.ExpiresAt.After(now)
}

// Device returns the stored device key, or "" for legacy rows.
func (r Record) Device() string {
	if r.DeviceKey == nil {
		return ""
	}
	return *r.DeviceKey
}

// Store abstracts persistence for refresh-token records.
//
// Non-transactional methods are lock-free reads and background sweeps.
// Every mutation that reads before it writes goes through InTx.
type Store interface {
	// InTx runs fn inside one transaction. fn's error rolls back; nil commits.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// GetByJTI loads a record by jti without locking.
	GetByJTI(ctx context.Context, jti string) (Record, error)

	// GetByTokenHash loads a record by token digest without locking.
	GetByTokenHash(ctx context.Context, tokenHash string) (Record, error)

	// ListActive returns the user's active records, oldest first.
	ListActive(ctx context.Context, userID string, now time.Time) ([]Record, error)

	// ReapExpired deletes every record with expires_at < now.
	ReapExpired(ctx context.Context, now time.Time) (int64, error)

	// ReapRevokedBefore deletes revoked records with revoked_at < cutoff.
	ReapRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tx is the lock-scoped view of the store used by mutators.
//
// Lock order is always LockUser first, then row locks, which keeps
// concurrent mutators for one user deadlock-free.
type Tx interface {
	// LockUser takes the per-user write lock held until the transaction ends.
	LockUser(ctx context.Context, userID string) error

	// GetByJTIForUpdate loads and row-locks a record by jti.
	GetByJTIForUpdate(ctx context.Context, jti string) (Record, error)

	// GetByTokenHashForUpdate loads and row-locks a record by token digest.
	GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (Record, error)

	// ActiveForUserForUpdate row-locks the user's active records,
	// ordered by created_at ASC, id ASC.
	ActiveForUserForUpdate(ctx context.Context, userID string, now time.Time) ([]Record, error)

	// ActiveForDeviceForUpdate row-locks the active records of one device,
	// ordered by created_at DESC, id DESC.
	ActiveForDeviceForUpdate(ctx context.Context, userID, deviceKey string, now time.Time) ([]Record, error)

	// Insert stores a new record. A duplicate jti or token digest yields ErrJTIConflict.
	Insert(ctx context.Context, r Record) error

	// Revoke flips revoked/revoked_at on the given, not yet revoked records.
	Revoke(ctx context.Context, ids []string, now time.Time) (int64, error)

	// Delete hard-deletes one record.
	Delete(ctx context.Context, id string) error

	// PruneRevoked deletes the user's revoked records whose jti is neither in
	// keep nor the rotated_from of one of the user's unrevoked records.
	PruneRevoked(ctx context.Context, userID string, keep []string) (int64, error)
}
