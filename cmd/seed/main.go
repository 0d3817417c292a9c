// seed creates the initial verified Admin account and stores the default authorization policy.
// Idempotent: an existing verified account for SEED_ADMIN_EMAIL is promoted to Admin if needed,
// and the policy row is upserted.
package main

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/config"
	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/platform/logger"
	policydomain "passwordless-auth/backend/internal/policy/domain"
	policyengine "passwordless-auth/backend/internal/policy/engine"
	policyrepo "passwordless-auth/backend/internal/policy/repository"
	userdomain "passwordless-auth/backend/internal/user/domain"
	userrepo "passwordless-auth/backend/internal/user/repository"
)

const defaultPolicyID = "default-authz"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log := logger.New(cfg.LogLevel, cfg.Env).Named("seed")
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool, db.NewPgTxManager(pool))
	policies := policyrepo.NewPostgresRepository(pool)
	now := time.Now().UTC()

	if err := policies.Upsert(ctx, &policydomain.Policy{
		ID:        defaultPolicyID,
		Name:      "default role table",
		Rules:     policyengine.DefaultRegoPolicy,
		Enabled:   true,
		CreatedAt: now,
	}); err != nil {
		log.Fatal("upsert policy", zap.Error(err), zap.String("db_detail", db.Detail(err)))
	}

	email := strings.ToLower(strings.TrimSpace(cfg.SeedAdminEmail))
	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		log.Fatal("lookup admin", zap.Error(err), zap.String("db_detail", db.Detail(err)))
	}
	switch {
	case existing != nil && existing.IsVerified() && existing.Role == authz.RoleAdmin:
		log.Info("admin already seeded; skipping", zap.String("user_id", existing.ID))
	case existing != nil && existing.IsVerified():
		if _, err := users.Update(ctx, existing.ID, func(u *userdomain.User) error {
			u.Role = authz.RoleAdmin
			u.UpdatedAt = now
			return nil
		}); err != nil {
			log.Fatal("promote admin", zap.Error(err))
		}
		log.Info("existing account promoted to admin", zap.String("user_id", existing.ID))
	default:
		admin := userdomain.NewUnverified(uuid.NewString(), email, cfg.SeedAdminUsername, now)
		admin.EmailStatus = userdomain.EmailVerified
		admin.Role = authz.RoleAdmin
		if err := users.Upsert(ctx, admin, nil); err != nil {
			log.Fatal("create admin", zap.Error(err), zap.String("db_detail", db.Detail(err)))
		}
		log.Info("admin created", zap.String("user_id", admin.ID), zap.String("email", email))
	}
	log.Info("seed completed", zap.String("policy_id", defaultPolicyID))
}
