package session

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the lodge schema objects if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("session: ensure schema: %w", err)
	}
	return nil
}

const recordColumns = `
	id, token_hash, jti, user_id,
	revoked, revoked_at, rotated_from,
	remember_me, created_at, expires_at, device_key`

// PostgresStore implements Store using PostgreSQL (lodge.refresh_tokens).
//
// The pgx pool is owned by the caller; this store never closes it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed token store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InTx runs fn in a READ COMMITTED read-write transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByJTI loads a record by jti.
func (s *PostgresStore) GetByJTI(ctx context.Context, jti string) (Record, error) {
	return scanRecord(s.pool.QueryRow(ctx, `
		SELECT`+recordColumns+`
		FROM lodge.refresh_tokens
		WHERE jti = $1
	`, jti))
}

// GetByTokenHash loads a record by token digest.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	return scanRecord(s.pool.QueryRow(ctx, `
		SELECT`+recordColumns+`
		FROM lodge.refresh_tokens
		WHERE token_hash = $1
	`, tokenHash))
}

// ListActive returns the user's active records, oldest first.
func (s *PostgresStore) ListActive(ctx context.Context, userID string, now time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+recordColumns+`
		FROM lodge.refresh_tokens
		WHERE user_id = $1 AND revoked = false AND expires_at > $2
		ORDER BY created_at ASC, id ASC
	`, userID, now)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// ReapExpired deletes every record that expired before now.
func (s *PostgresStore) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM lodge.refresh_tokens
		WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// ReapRevokedBefore deletes revoked records older than cutoff.
func (s *PostgresStore) ReapRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM lodge.refresh_tokens
		WHERE revoked = true AND revoked_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

type postgresTx struct {
	tx pgx.Tx
}

// LockUser takes a transaction-scoped advisory lock keyed by the user id.
// Unlike row locks it also covers users that have no rows yet.
func (t *postgresTx) LockUser(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID)
	return err
}

func (t *postgresTx) GetByJTIForUpdate(ctx context.Context, jti string) (Record, error) {
	return scanRecord(t.tx.QueryRow(ctx, `
		SELECT`+recordColumns+`
		FROM lodge.refresh_tokens
		WHERE jti = $1
		FOR UPDATE
	`, jti))
}

func (t *postgresTx) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (Record, error) {
	return scanRecord(t.tx.QueryRow(ctx, `
		SELECT`+recordColumns+`
		FROM lodge.refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash))
}

func (t *postgresTx) ActiveForUserForUpdate(ctx context.Context, userID string, now time.Time) ([]Record, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT`+recordColumns+`
		FROM lodge.refresh_tokens
		WHERE user_id = $1 AND revoked = false AND expires_at > $2
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, userID, now)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (t *postgresTx) ActiveForDeviceForUpdate(ctx context.Context, userID, deviceKey string, now time.Time) ([]Record, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT`+recordColumns+`
		FROM lodge.refresh_tokens
		WHERE user_id = $1 AND device_key = $2 AND revoked = false AND expires_at > $3
		ORDER BY created_at DESC, id DESC
		FOR UPDATE
	`, userID, deviceKey, now)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (t *postgresTx) Insert(ctx context.Context, r Record) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO lodge.refresh_tokens (
			id, token_hash, jti, user_id,
			revoked, revoked_at, rotated_from,
			remember_me, created_at, expires_at, device_key
		) VALUES (
			$1, $2, $3, $4,
			false, NULL, $5,
			$6, $7, $8, $9
		)
	`, r.ID, r.TokenHash, r.JTI, r.UserID, r.RotatedFrom, r.RememberMe, r.CreatedAt, r.ExpiresAt, r.DeviceKey)
	if isUniqueViolation(err) {
		return ErrJTIConflict
	}
	return err
}

func (t *postgresTx) Revoke(ctx context.Context, recordIDs []string, now time.Time) (int64, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}
	ct, err := t.tx.Exec(ctx, `
		UPDATE lodge.refresh_tokens
		SET revoked = true, revoked_at = $2
		WHERE id = ANY($1) AND revoked = false
	`, recordIDs, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (t *postgresTx) Delete(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM lodge.refresh_tokens WHERE id = $1`, id)
	return err
}

func (t *postgresTx) PruneRevoked(ctx context.Context, userID string, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	ct, err := t.tx.Exec(ctx, `
		DELETE FROM lodge.refresh_tokens
		WHERE user_id = $1 AND revoked = true AND NOT (jti = ANY($2))
		  AND jti NOT IN (
			SELECT rotated_from
			FROM lodge.refresh_tokens
			WHERE user_id = $1 AND revoked = false AND rotated_from IS NOT NULL
		  )
	`, userID, keep)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(
		&r.ID,
		&r.TokenHash,
		&r.JTI,
		&r.UserID,
		&r.Revoked,
		&r.RevokedAt,
		&r.RotatedFrom,
		&r.RememberMe,
		&r.CreatedAt,
		&r.ExpiresAt,
		&r.DeviceKey,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrTokenNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
