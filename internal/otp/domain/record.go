package domain

import (
	"errors"
	"time"
)

// Sentinel errors for the OTP lifecycle; the HTTP layer maps them to status codes.
var (
	ErrOTPNotFound     = errors.New("otp not found")
	ErrOTPExpired      = errors.New("otp expired")
	ErrOTPAlreadyUsed  = errors.New("otp already used")
	ErrTooManyAttempts = errors.New("too many otp attempts; request a new code")
	ErrInvalidOTP      = errors.New("invalid otp")
	// ErrOTPConflict is returned when the record changed between read and write (a concurrent attempt or a reissue).
	ErrOTPConflict = errors.New("otp record changed concurrently; retry")
)

// Defaults for issued codes.
const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 5
)

// State is the lifecycle state derived from a record's fields.
type State string

const (
	StateFresh     State = "fresh"
	StateVerified  State = "verified"
	StateExpired   State = "expired"
	StateExhausted State = "exhausted"
)

// Terminal reports whether no verification can succeed from s.
func (s State) Terminal() bool {
	return s != StateFresh
}

// Record is the single outstanding code for an email. Issuing a new code replaces it.
type Record struct {
	Email     string
	OTPHash   string
	ExpiresAt time.Time
	Used      bool
	Attempts  int
	CreatedAt time.Time
}

// NewRecord returns an unused record for email that expires ttl after now.
func NewRecord(email, otpHash string, now time.Time, ttl time.Duration) *Record {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Record{
		Email:     email,
		OTPHash:   otpHash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// State returns the lifecycle state at now. Exhaustion dominates, then use, then expiry.
func (r *Record) State(now time.Time, maxAttempts int) State {
	switch {
	case r.Attempts >= maxAttempts:
		return StateExhausted
	case r.Used:
		return StateVerified
	case !now.Before(r.ExpiresAt):
		return StateExpired
	default:
		return StateFresh
	}
}

// Validate returns nil while the record can still be verified, and the error for its terminal state otherwise.
func (r *Record) Validate(now time.Time, maxAttempts int) error {
	st := r.State(now, maxAttempts)
	if !st.Terminal() {
		return nil
	}
	switch st {
	case StateExhausted:
		return ErrTooManyAttempts
	case StateVerified:
		return ErrOTPAlreadyUsed
	case StateExpired:
		return ErrOTPExpired
	default:
		return nil
	}
}

// IncrementAttempts counts one verification attempt.
func (r *Record) IncrementAttempts() {
	r.Attempts++
}

// MarkUsed flags the record as consumed by a successful verification.
func (r *Record) MarkUsed() {
	r.Used = true
}
