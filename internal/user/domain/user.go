// Package domain holds the account entity, the update descriptors that mutate it, and its read model.
package domain

import (
	"errors"
	"time"

	"passwordless-auth/backend/internal/authz"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUsernameTaken        = errors.New("username already taken")
	ErrUsernameOrEmailTaken = errors.New("username or email already taken")
	ErrUnverifiedEmail      = errors.New("email is not verified")
	ErrUnableToVerifyEmail  = errors.New("unable to verify email")
)

// Username length bounds, inclusive.
const (
	UsernameMinLen = 3
	UsernameMaxLen = 40
)

type EmailStatus string

const (
	EmailUnverified EmailStatus = "unverified"
	EmailVerified   EmailStatus = "verified"
)

type BanType string

const (
	BanIndefinite BanType = "indefinite"
	BanDefinite   BanType = "definite"
)

// BanStatus is present on a banned account. From and To are set only for definite bans.
type BanStatus struct {
	Reason   string
	Type     BanType
	From     time.Time
	To       time.Time
	BannedAt time.Time
}

// Active reports whether the ban is in force at now.
func (b *BanStatus) Active(now time.Time) bool {
	if b == nil {
		return false
	}
	if b.Type == BanIndefinite {
		return true
	}
	return !now.Before(b.From) && now.Before(b.To)
}

// User is an account. Email and username are unique among verified accounts only.
type User struct {
	ID          string
	Email       string
	Username    string
	Role        authz.Role
	EmailStatus EmailStatus
	Ban         *BanStatus
	Badges      []string
	JoinedAt    time.Time
	UpdatedAt   time.Time
}

// NewUnverified returns the placeholder account created by sign-up.
func NewUnverified(id, email, username string, now time.Time) *User {
	return &User{
		ID:          id,
		Email:       email,
		Username:    username,
		Role:        authz.RoleRegular,
		EmailStatus: EmailUnverified,
		Badges:      []string{},
		JoinedAt:    now,
		UpdatedAt:   now,
	}
}

func (u *User) IsVerified() bool { return u.EmailStatus == EmailVerified }

// HasBadge reports whether badge is in the user's badge set.
func (u *User) HasBadge(badge string) bool {
	for _, b := range u.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	c.Badges = append([]string(nil), u.Badges...)
	if c.Badges == nil {
		c.Badges = []string{}
	}
	if u.Ban != nil {
		b := *u.Ban
		c.Ban = &b
	}
	return &c
}
