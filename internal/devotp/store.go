// Package devotp keeps plaintext OTPs by email for dev-only retrieval (GET /dev/otp).
// It is wired only when OTP_RETURN_TO_CLIENT is enabled outside production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain OTPs by email. Not used in production.
type Store interface {
	// Put stores otp for email until expiresAt, replacing any previous code.
	Put(ctx context.Context, email, otp string, expiresAt time.Time) error
	// Get returns the otp for email if present and not expired.
	Get(ctx context.Context, email string) (otp string, ok bool, err error)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores otp for email until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, email, otp string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[email] = entry{otp: otp, expiresAt: expiresAt}
	return nil
}

// Get returns the otp for email if present and not expired. Expired entries are dropped.
func (s *MemoryStore) Get(ctx context.Context, email string) (string, bool, error) {
	s.mu.RLock()
	e, ok := s.m[email]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, email)
		s.mu.Unlock()
		return "", false, nil
	}
	return e.otp, true, nil
}
