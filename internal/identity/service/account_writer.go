package service

import (
	"context"

	"passwordless-auth/backend/internal/db"
	otpdomain "passwordless-auth/backend/internal/otp/domain"
	userdomain "passwordless-auth/backend/internal/user/domain"
)

// UserWriter is the user write needed by AccountWriter.
type UserWriter interface {
	Upsert(ctx context.Context, u *userdomain.User, tx db.Tx) error
}

// OTPWriter is the OTP write needed by AccountWriter.
type OTPWriter interface {
	Upsert(ctx context.Context, rec *otpdomain.Record, tx db.Tx) error
	CompareAndSwap(ctx context.Context, rec *otpdomain.Record, expectedAttempts int, tx db.Tx) error
}

// AccountWriter performs the paired user and OTP writes of sign-up and email verification in one
// transaction. With a db.NoopTxManager and in-memory stores the writes run in sequence without atomicity.
type AccountWriter struct {
	txm   db.TxManager
	users UserWriter
	otps  OTPWriter
}

// NewAccountWriter returns an AccountWriter.
func NewAccountWriter(txm db.TxManager, users UserWriter, otps OTPWriter) *AccountWriter {
	return &AccountWriter{txm: txm, users: users, otps: otps}
}

// CreateAccount upserts the placeholder user and its freshly issued OTP together.
func (w *AccountWriter) CreateAccount(ctx context.Context, u *userdomain.User, rec *otpdomain.Record) error {
	return db.WithinTransaction(ctx, w.txm, func(ctx context.Context, tx db.Tx) error {
		if err := w.users.Upsert(ctx, u, tx); err != nil {
			return err
		}
		return w.otps.Upsert(ctx, rec, tx)
	})
}

// IssueOTP replaces the OTP for rec.Email. It is a single-record write and needs no transaction.
func (w *AccountWriter) IssueOTP(ctx context.Context, rec *otpdomain.Record) error {
	return w.otps.Upsert(ctx, rec, nil)
}

// VerifyEmail records the successful attempt on rec and saves the verified user together. If the user
// write fails (for example another account verified the same email first) the OTP stays unconsumed.
func (w *AccountWriter) VerifyEmail(ctx context.Context, u *userdomain.User, rec *otpdomain.Record, expectedAttempts int) error {
	return db.WithinTransaction(ctx, w.txm, func(ctx context.Context, tx db.Tx) error {
		if err := w.otps.CompareAndSwap(ctx, rec, expectedAttempts, tx); err != nil {
			return err
		}
		return w.users.Upsert(ctx, u, tx)
	})
}
