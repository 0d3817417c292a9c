package otp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"passwordless-auth/backend/internal/devotp"
	"passwordless-auth/backend/internal/platform/logger"
)

// Dispatcher delivers an issued code out-of-band. Dispatch runs after the record is committed;
// callers log failures and do not undo the issuance.
type Dispatcher interface {
	Dispatch(ctx context.Context, email, code string, expiresAt time.Time) error
}

// LogDispatcher records that a code was issued. There is no email or SMS delivery yet.
type LogDispatcher struct {
	log *zap.Logger
}

// NewLogDispatcher returns a Dispatcher that only logs.
func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: logger.OrNop(log).Named("otp.dispatch")}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, email, code string, expiresAt time.Time) error {
	d.log.Info("otp issued", zap.String("email", email), zap.Time("expires_at", expiresAt))
	return nil
}

// DevStoreDispatcher keeps the plaintext code in a dev store so GET /dev/otp can return it, then calls next.
// Only wired when OTP_RETURN_TO_CLIENT is enabled outside production.
type DevStoreDispatcher struct {
	store devotp.Store
	next  Dispatcher
}

// NewDevStoreDispatcher wraps next. next may be nil.
func NewDevStoreDispatcher(store devotp.Store, next Dispatcher) *DevStoreDispatcher {
	return &DevStoreDispatcher{store: store, next: next}
}

func (d *DevStoreDispatcher) Dispatch(ctx context.Context, email, code string, expiresAt time.Time) error {
	if err := d.store.Put(ctx, email, code, expiresAt); err != nil {
		return err
	}
	if d.next == nil {
		return nil
	}
	return d.next.Dispatch(ctx, email, code, expiresAt)
}
