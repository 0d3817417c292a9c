package domain

import (
	"time"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/platform/validation"
)

// Update is a descriptor of one account mutation. The set of variants is closed.
type Update interface {
	// Name identifies the update in logs and events.
	Name() string
	apply(u *User, now time.Time) error
}

type Ban struct {
	Reason string
	Type   BanType
	From   time.Time
	To     time.Time
}

type Unban struct{}

type ChangeUsername struct {
	New string
}

type AwardBadge struct {
	Badge string
}

type RevokeBadge struct {
	Badge string
}

type MakeModerator struct{}

type MakeRegular struct{}

type VerifyEmail struct{}

func (Ban) Name() string            { return "ban" }
func (Unban) Name() string          { return "unban" }
func (ChangeUsername) Name() string { return "change_username" }
func (AwardBadge) Name() string     { return "award_badge" }
func (RevokeBadge) Name() string    { return "revoke_badge" }
func (MakeModerator) Name() string  { return "make_moderator" }
func (MakeRegular) Name() string    { return "make_regular" }
func (VerifyEmail) Name() string    { return "verify_email" }

// Apply validates upd against u and mutates u in place. UpdatedAt is set to now on success.
func (u *User) Apply(upd Update, now time.Time) error {
	if err := upd.apply(u, now); err != nil {
		return err
	}
	u.UpdatedAt = now
	return nil
}

func (b Ban) apply(u *User, now time.Time) error {
	if b.Reason == "" {
		return validation.NewFieldError("reason", "is required")
	}
	status := &BanStatus{Reason: b.Reason, Type: b.Type, BannedAt: now}
	switch b.Type {
	case BanIndefinite:
	case BanDefinite:
		if !b.From.Before(b.To) {
			return validation.NewFieldError("to", "must be after from")
		}
		status.From, status.To = b.From, b.To
	default:
		return validation.NewFieldError("type", "must be one of: indefinite definite")
	}
	u.Ban = status
	return nil
}

func (Unban) apply(u *User, _ time.Time) error {
	u.Ban = nil
	return nil
}

func (c ChangeUsername) apply(u *User, _ time.Time) error {
	if n := len([]rune(c.New)); n < UsernameMinLen || n > UsernameMaxLen {
		return validation.NewFieldError("username", "must be between 3 and 40 characters long")
	}
	u.Username = c.New
	return nil
}

func (a AwardBadge) apply(u *User, _ time.Time) error {
	if a.Badge == "" {
		return validation.NewFieldError("badge", "is required")
	}
	if !u.HasBadge(a.Badge) {
		u.Badges = append(u.Badges, a.Badge)
	}
	return nil
}

func (r RevokeBadge) apply(u *User, _ time.Time) error {
	kept := make([]string, 0, len(u.Badges))
	for _, b := range u.Badges {
		if b != r.Badge {
			kept = append(kept, b)
		}
	}
	u.Badges = kept
	return nil
}

func (MakeModerator) apply(u *User, _ time.Time) error {
	u.Role = authz.RoleModerator
	return nil
}

func (MakeRegular) apply(u *User, _ time.Time) error {
	u.Role = authz.RoleRegular
	return nil
}

func (VerifyEmail) apply(u *User, _ time.Time) error {
	if u.IsVerified() {
		return ErrUnableToVerifyEmail
	}
	u.EmailStatus = EmailVerified
	return nil
}
