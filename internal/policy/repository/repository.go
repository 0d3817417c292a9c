package repository

import (
	"context"

	"passwordless-auth/backend/internal/policy/domain"
)

// Repository defines persistence for authorization policies.
type Repository interface {
	// ListEnabled returns enabled policies ordered by creation time.
	ListEnabled(ctx context.Context) ([]*domain.Policy, error)
	// Upsert creates p or replaces the policy with the same ID.
	Upsert(ctx context.Context, p *domain.Policy) error
}
