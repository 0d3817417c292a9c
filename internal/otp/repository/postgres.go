package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/otp/domain"
)

// PostgresRepository stores OTP records in the otps table.
type PostgresRepository struct {
	pool db.Querier
}

// NewPostgresRepository returns an OTP repository backed by pool (usually a *pgxpool.Pool).
func NewPostgresRepository(pool db.Querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const otpColumns = `email, otp_hash, expires_at, used, attempts, created_at`

// Get returns the record for email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, email string) (*domain.Record, error) {
	var rec domain.Record
	err := r.pool.QueryRow(ctx, `SELECT `+otpColumns+` FROM otps WHERE email = $1`, email).
		Scan(&rec.Email, &rec.OTPHash, &rec.ExpiresAt, &rec.Used, &rec.Attempts, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, db.Wrap("otp get", err)
	}
	return &rec, nil
}

// Upsert inserts rec or replaces the existing record for the same email.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *domain.Record, tx db.Tx) error {
	q, err := db.QuerierFor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO otps (`+otpColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			otp_hash = EXCLUDED.otp_hash,
			expires_at = EXCLUDED.expires_at,
			used = EXCLUDED.used,
			attempts = EXCLUDED.attempts,
			created_at = EXCLUDED.created_at`,
		rec.Email, rec.OTPHash, rec.ExpiresAt, rec.Used, rec.Attempts, rec.CreatedAt)
	return db.Wrap("otp upsert", err)
}

// CompareAndSwap updates used and attempts when the stored row still matches expectedAttempts and rec.OTPHash.
func (r *PostgresRepository) CompareAndSwap(ctx context.Context, rec *domain.Record, expectedAttempts int, tx db.Tx) error {
	q, err := db.QuerierFor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `
		UPDATE otps SET used = $3, attempts = $4
		WHERE email = $1 AND otp_hash = $2 AND attempts = $5`,
		rec.Email, rec.OTPHash, rec.Used, rec.Attempts, expectedAttempts)
	if err != nil {
		return db.Wrap("otp compare-and-swap", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOTPConflict
	}
	return nil
}

// Delete removes the record for email.
func (r *PostgresRepository) Delete(ctx context.Context, email, otpHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM otps WHERE email = $1 AND otp_hash = $2`, email, otpHash)
	return db.Wrap("otp delete", err)
}
