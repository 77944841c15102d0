package session

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for dev mode and tests.
//
// InTx serializes all transactions behind one mutex and works on a copy of
// the table that replaces the committed state only when fn succeeds, so a
// failed transaction leaves no trace.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Record // by id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Record)}
}

// InTx implements Store.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := make(map[string]Record, len(s.rows))
	for k, v := range s.rows {
		work[k] = v
	}

	if err := fn(&memoryTx{rows: work}); err != nil {
		return err
	}
	s.rows = work
	return nil
}

// GetByJTI implements Store.
func (s *MemoryStore) GetByJTI(_ context.Context, jti string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findBy(s.rows, func(r Record) bool { return r.JTI == jti })
}

// GetByTokenHash implements Store.
func (s *MemoryStore) GetByTokenHash(_ context.Context, tokenHash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findBy(s.rows, func(r Record) bool { return r.TokenHash == tokenHash })
}

// ListActive implements Store.
func (s *MemoryStore) ListActive(_ context.Context, userID string, now time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return selectOrdered(s.rows, func(r Record) bool { return r.UserID == userID && r.Active(now) }, false), nil
}

// ReapExpired implements Store.
func (s *MemoryStore) ReapExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteWhere(s.rows, func(r Record) bool { return r.ExpiresAt.Before(now) }), nil
}

// ReapRevokedBefore implements Store.
func (s *MemoryStore) ReapRevokedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteWhere(s.rows, func(r Record) bool {
		return r.Revoked && r.RevokedAt != nil && r.RevokedAt.Before(cutoff)
	}), nil
}

// Snapshot returns a copy of every stored record, oldest first.
func (s *MemoryStore) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return selectOrdered(s.rows, func(Record) bool { return true }, false)
}

type memoryTx struct {
	rows map[string]Record
}

// LockUser is a no-op: the whole transaction already holds the store mutex.
func (t *memoryTx) LockUser(context.Context, string) error { return nil }

func (t *memoryTx) GetByJTIForUpdate(_ context.Context, jti string) (Record, error) {
	return findBy(t.rows, func(r Record) bool { return r.JTI == jti })
}

func (t *memoryTx) GetByTokenHashForUpdate(_ context.Context, tokenHash string) (Record, error) {
	return findBy(t.rows, func(r Record) bool { return r.TokenHash == tokenHash })
}

func (t *memoryTx) ActiveForUserForUpdate(_ context.Context, userID string, now time.Time) ([]Record, error) {
	return selectOrdered(t.rows, func(r Record) bool { return r.UserID == userID && r.Active(now) }, false), nil
}

func (t *memoryTx) ActiveForDeviceForUpdate(_ context.Context, userID, deviceKey string, now time.Time) ([]Record, error) {
	return selectOrdered(t.rows, func(r Record) bool {
		return r.UserID == userID && r.Device() == deviceKey && r.Active(now)
	}, true), nil
}

func (t *memoryTx) Insert(_ context.Context, r Record) error {
	for _, existing := range t.rows {
		if existing.JTI == r.JTI || existing.TokenHash == r.TokenHash {
			return ErrJTIConflict
		}
	}
	if _, ok := t.rows[r.ID]; ok {
		return ErrJTIConflict
	}
	t.rows[r.ID] = r
	return nil
}

func (t *memoryTx) Revoke(_ context.Context, ids []string, now time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		r, ok := t.rows[id]
		if !ok || r.Revoked {
			continue
		}
		at := now
		r.Revoked = true
		r.RevokedAt = &at
		t.rows[id] = r
		n++
	}
	return n, nil
}

func (t *memoryTx) Delete(_ context.Context, id string) error {
	delete(t.rows, id)
	return nil
}

func (t *memoryTx) PruneRevoked(_ context.Context, userID string, keep []string) (int64, error) {
	parents := make(map[string]struct{})
	for _, r := range t.rows {
		if r.UserID == userID && !r.Revoked && r.RotatedFrom != nil {
			parents[*r.RotatedFrom] = struct{}{}
		}
	}
	return deleteWhere(t.rows, func(r Record) bool {
		if r.UserID != userID || !r.Revoked || slices.Contains(keep, r.JTI) {
			return false
		}
		_, live := parents[r.JTI]
		return !live
	}), nil
}

func findBy(rows map[string]Record, match func(Record) bool) (Record, error) {
	for _, r := range rows {
		if match(r) {
			return r, nil
		}
	}
	return Record{}, ErrTokenNotFound
}

func selectOrdered(rows map[string]Record, match func(Record) bool, desc bool) []Record {
	out := make([]Record, 0, 4)
	for _, r := range rows {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func deleteWhere(rows map[string]Record, match func(Record) bool) int64 {
	var n int64
	for id, r := range rows {
		if match(r) {
			delete(rows, id)
			n++
		}
	}
	return n
}
