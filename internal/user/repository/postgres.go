package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/user/domain"
)

type PostgresRepository struct {
	pool db.Querier
	txm  db.TxManager
}

// NewPostgresRepository returns a user repository backed by pool. Update runs in transactions from txm.
func NewPostgresRepository(pool db.Querier, txm db.TxManager) *PostgresRepository {
	return &PostgresRepository{pool: pool, txm: txm}
}

const userColumns = `id, email, username, role, email_status, ban_reason, ban_type, ban_from, ban_to, banned_at, badges, joined_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u                        domain.User
		role, status             string
		banReason, banType       *string
		banFrom, banTo, bannedAt *time.Time
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &role, &status,
		&banReason, &banType, &banFrom, &banTo, &bannedAt,
		&u.Badges, &u.JoinedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if u.Role, err = authz.ParseRole(role); err != nil {
		return nil, err
	}
	u.EmailStatus = domain.EmailStatus(status)
	if u.Badges == nil {
		u.Badges = []string{}
	}
	if banReason != nil && banType != nil {
		b := &domain.BanStatus{Reason: *banReason, Type: domain.BanType(*banType)}
		if banFrom != nil {
			b.From = *banFrom
		}
		if banTo != nil {
			b.To = *banTo
		}
		if bannedAt != nil {
			b.BannedAt = *bannedAt
		}
		u.Ban = b
	}
	return &u, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, q db.Querier, op, sql string, args ...any) (*domain.User, error) {
	u, err := scanUser(q.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, db.Wrap(op, err)
	}
	return u, nil
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, r.pool, "user get", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, r.pool, "user get by email", `
		SELECT `+userColumns+` FROM users WHERE email = $1
		ORDER BY (email_status = 'verified') DESC, joined_at DESC LIMIT 1`, email)
}

func (r *PostgresRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error) {
	return r.getOne(ctx, r.pool, "user find", `
		SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $2
		ORDER BY (email_status = 'verified') DESC, (email = $2) DESC, joined_at DESC LIMIT 1`, username, email)
}

func (r *PostgresRepository) VerifiedUsernameExists(ctx context.Context, username, excludeID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND email_status = 'verified' AND id::text <> $2)`,
		username, excludeID).Scan(&exists)
	if err != nil {
		return false, db.Wrap("user username exists", err)
	}
	return exists, nil
}

func banArgs(b *domain.BanStatus) (reason, typ *string, from, to, at *time.Time) {
	if b == nil {
		return nil, nil, nil, nil, nil
	}
	reason = &b.Reason
	t := string(b.Type)
	typ = &t
	if b.Type == domain.BanDefinite {
		from, to = &b.From, &b.To
	}
	at = &b.BannedAt
	return reason, typ, from, to, at
}

func (r *PostgresRepository) write(ctx context.Context, q db.Querier, u *domain.User) error {
	reason, typ, from, to, at := banArgs(u.Ban)
	badges := u.Badges
	if badges == nil {
		badges = []string{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			role = EXCLUDED.role,
			email_status = EXCLUDED.email_status,
			ban_reason = EXCLUDED.ban_reason,
			ban_type = EXCLUDED.ban_type,
			ban_from = EXCLUDED.ban_from,
			ban_to = EXCLUDED.ban_to,
			banned_at = EXCLUDED.banned_at,
			badges = EXCLUDED.badges,
			updated_at = EXCLUDED.updated_at`,
		u.ID, u.Email, u.Username, string(u.Role), string(u.EmailStatus),
		reason, typ, from, to, at, badges, u.JoinedAt, u.UpdatedAt)
	return err
}

func (r *PostgresRepository) Upsert(ctx context.Context, u *domain.User, tx db.Tx) error {
	q, err := db.QuerierFor(r.pool, tx)
	if err != nil {
		return err
	}
	if err := r.write(ctx, q, u); err != nil {
		if db.IsUniqueViolation(err) {
			return domain.ErrUsernameOrEmailTaken
		}
		return db.Wrap("user upsert", err)
	}
	return nil
}

// Update locks the row with SELECT ... FOR UPDATE so concurrent updates to one user serialize.
// A username clash with a verified account returns domain.ErrUsernameTaken.
func (r *PostgresRepository) Update(ctx context.Context, id string, fn func(u *domain.User) error) (*domain.User, error) {
	var out *domain.User
	err := db.WithinTransaction(ctx, r.txm, func(ctx context.Context, tx db.Tx) error {
		q, err := db.QuerierFor(r.pool, tx)
		if err != nil {
			return err
		}
		u, err := r.getOne(ctx, q, "user lock", `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if u == nil {
			return domain.ErrUserNotFound
		}
		if err := fn(u); err != nil {
			return err
		}
		if err := r.write(ctx, q, u); err != nil {
			if db.IsUniqueViolation(err) {
				return domain.ErrUsernameTaken
			}
			return db.Wrap("user update", err)
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) List(ctx context.Context, p ListParams) ([]*domain.User, error) {
	order, cmp := "ASC", ">"
	if p.Desc {
		order, cmp = "DESC", "<"
	}
	sql := `SELECT ` + userColumns + ` FROM users`
	args := []any{}
	if p.After != nil {
		sql += fmt.Sprintf(` WHERE (joined_at, id) %s ($1, $2)`, cmp)
		args = append(args, p.After.JoinedAt, p.After.ID)
	}
	sql += fmt.Sprintf(` ORDER BY joined_at %s, id %s LIMIT %d`, order, order, p.Limit)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Wrap("user list", err)
	}
	defer rows.Close()
	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, db.Wrap("user scan", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("user list", err)
	}
	return out, nil
}
