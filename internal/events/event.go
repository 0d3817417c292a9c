// Package events publishes best-effort account events after successful commands.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeUserSignedUp        = "user.signed_up"
	TypeOTPIssued           = "otp.issued"
	TypeOTPVerified         = "otp.verified"
	TypeUserEmailVerified   = "user.email_verified"
	TypeUserBanned          = "user.banned"
	TypeUserUnbanned        = "user.unbanned"
	TypeUserUsernameChanged = "user.username_changed"
	TypeUserBadgeAwarded    = "user.badge_awarded"
	TypeUserBadgeRevoked    = "user.badge_revoked"
	TypeUserRoleChanged     = "user.role_changed"
)

// Event is one account event. Attributes carry type-specific detail (badge, role, username).
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// New returns an event with a fresh ID.
func New(typ, userID, email string, at time.Time) *Event {
	return &Event{ID: uuid.NewString(), Type: typ, UserID: userID, Email: email, OccurredAt: at.UTC()}
}

// With sets attribute k and returns e.
func (e *Event) With(k, v string) *Event {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[k] = v
	return e
}

// Emitter publishes events. Best-effort; callers log and ignore errors.
type Emitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Multi fans an event out to every non-nil emitter and returns the first error.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event *Event) error {
	var first error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
