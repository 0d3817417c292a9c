package repository

import (
	"context"
	"sync"

	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/otp/domain"
)

// MemoryRepository keeps OTP records in a map. Used when no DATABASE_URL is configured and in tests.
// It accepts db.NoopTx handles; writes apply immediately.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]domain.Record
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]domain.Record)}
}

func (r *MemoryRepository) Get(ctx context.Context, email string) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.m[email]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, rec *domain.Record, tx db.Tx) error {
	if err := db.CheckMemoryTx(tx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[rec.Email] = *rec
	return nil
}

func (r *MemoryRepository) CompareAndSwap(ctx context.Context, rec *domain.Record, expectedAttempts int, tx db.Tx) error {
	if err := db.CheckMemoryTx(tx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.m[rec.Email]
	if !ok || cur.Attempts != expectedAttempts || cur.OTPHash != rec.OTPHash {
		return domain.ErrOTPConflict
	}
	cur.Used = rec.Used
	cur.Attempts = rec.Attempts
	r.m[rec.Email] = cur
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, email, otpHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.m[email]; ok && cur.OTPHash == otpHash {
		delete(r.m, email)
	}
	return nil
}
