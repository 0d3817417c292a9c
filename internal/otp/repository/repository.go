package repository

import (
	"context"

	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/otp/domain"
)

// Repository defines persistence for OTP records, keyed by email.
type Repository interface {
	// Get returns the record for email, or nil if none exists.
	Get(ctx context.Context, email string) (*domain.Record, error)
	// Upsert replaces any record for rec.Email. A non-nil tx makes the write part of that transaction.
	Upsert(ctx context.Context, rec *domain.Record, tx db.Tx) error
	// CompareAndSwap writes rec's used flag and attempt count only if the stored record still has
	// expectedAttempts and rec's hash. It returns domain.ErrOTPConflict when the stored record moved on.
	CompareAndSwap(ctx context.Context, rec *domain.Record, expectedAttempts int, tx db.Tx) error
	// Delete removes the record for email if it still carries otpHash. A missing or reissued
	// record is left alone and is not an error.
	Delete(ctx context.Context, email, otpHash string) error
}
