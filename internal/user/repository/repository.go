package repository

import (
	"context"
	"time"

	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/user/domain"
)

// Cursor is the (joined_at, id) position of a user in list order.
type Cursor struct {
	JoinedAt time.Time
	ID       string
}

// ListParams selects one page of users ordered by joined_at (ties broken by id).
type ListParams struct {
	// Limit is the maximum number of rows returned.
	Limit int
	// After, when non-nil, skips users at or before it in the chosen order.
	After *Cursor
	// Desc orders newest first.
	Desc bool
}

// Repository defines persistence for users. Lookups return (nil, nil) when nothing matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail prefers the verified account for email, then the most recently joined one.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindByUsernameOrEmail returns an account whose username or email matches, preferring a verified
	// match, then an email match.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error)
	// VerifiedUsernameExists reports whether a verified account other than excludeID uses username.
	VerifiedUsernameExists(ctx context.Context, username, excludeID string) (bool, error)
	// Upsert inserts u or replaces the row with the same ID. A verified email or username clash
	// returns domain.ErrUsernameOrEmailTaken.
	Upsert(ctx context.Context, u *domain.User, tx db.Tx) error
	// Update loads the user, applies fn, and persists the result atomically. fn's error aborts
	// the write and is returned unchanged.
	Update(ctx context.Context, id string, fn func(u *domain.User) error) (*domain.User, error)
	List(ctx context.Context, p ListParams) ([]*domain.User, error)
}
