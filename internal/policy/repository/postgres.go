package repository

import (
	"context"

	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/policy/domain"
)

type PostgresRepository struct {
	pool db.Querier
}

// NewPostgresRepository returns a policy repository backed by pool.
func NewPostgresRepository(pool db.Querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListEnabled returns all enabled policies. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListEnabled(ctx context.Context) ([]*domain.Policy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, rules, enabled, created_at FROM authz_policies WHERE enabled ORDER BY created_at, id`)
	if err != nil {
		return nil, db.Wrap("policy list", err)
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, db.Wrap("policy scan", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("policy list", err)
	}
	return out, nil
}

// Upsert persists p. The policy must have ID set.
func (r *PostgresRepository) Upsert(ctx context.Context, p *domain.Policy) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO authz_policies (id, name, rules, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, rules = EXCLUDED.rules, enabled = EXCLUDED.enabled`,
		p.ID, p.Name, p.Rules, p.Enabled, p.CreatedAt)
	return db.Wrap("policy upsert", err)
}
