package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/config"
	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/db/migrate"
	"passwordless-auth/backend/internal/devotp"
	"passwordless-auth/backend/internal/events"
	"passwordless-auth/backend/internal/events/producer"
	"passwordless-auth/backend/internal/health"
	identityservice "passwordless-auth/backend/internal/identity/service"
	"passwordless-auth/backend/internal/otp"
	otprepo "passwordless-auth/backend/internal/otp/repository"
	policyengine "passwordless-auth/backend/internal/policy/engine"
	policyrepo "passwordless-auth/backend/internal/policy/repository"
	"passwordless-auth/backend/internal/security"
	"passwordless-auth/backend/internal/server"
	telemetryotel "passwordless-auth/backend/internal/telemetry/otel"
	userrepo "passwordless-auth/backend/internal/user/repository"
	userservice "passwordless-auth/backend/internal/user/service"
)

// app holds the wired services and everything that must be closed on shutdown.
type app struct {
	auth     *identityservice.AuthService
	users    *userservice.UserService
	tokens   *security.TokenProvider
	health   *health.Checker
	devStore devotp.Store
	registry *prometheus.Registry
	closers  []func(context.Context) error
}

func (a *app) routerDeps(log *zap.Logger) server.Deps {
	return server.Deps{
		Auth:        a.auth,
		Users:       a.users,
		Verifier:    a.tokens,
		Health:      a.health,
		DevOTPStore: a.devStore,
		Registry:    a.registry,
		Log:         log,
	}
}

func (a *app) close(log *zap.Logger) {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}
}

func build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	a.closers = append(a.closers, providers.Shutdown)

	tokens, err := security.NewTokenProvider(security.ProviderConfig{
		Secret:     cfg.AuthSecret,
		PrivateKey: cfg.JWTPrivateKey,
		PublicKey:  cfg.JWTPublicKey,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		TTL:        cfg.TokenTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("token provider: %w", err)
	}
	a.tokens = tokens
	log.Info("credential signing configured", zap.String("alg", tokens.Alg()), zap.Duration("ttl", cfg.TokenTTL()))

	var (
		users    userrepo.Repository
		otps     otprepo.Repository
		txm      db.TxManager
		pool     *pgxpool.Pool
		policies policyrepo.Repository
	)
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnBoot {
			if err := migrate.Run(cfg.DatabaseURL, "up", log); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		pgTxm := db.NewPgTxManager(pool)
		txm = pgTxm
		users = userrepo.NewPostgresRepository(pool, pgTxm)
		otps = otprepo.NewPostgresRepository(pool)
		policies = policyrepo.NewPostgresRepository(pool)
	} else {
		log.Warn("DATABASE_URL not set; using in-memory stores (data is lost on restart)")
		txm = db.NewNoopTxManager()
		users = userrepo.NewMemoryRepository()
		otps = otprepo.NewMemoryRepository()
	}

	engine, policyChecker, err := buildEngine(ctx, cfg, policies, log)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		a.health = health.NewChecker(pool, policyChecker)
	} else {
		a.health = health.NewChecker(nil, policyChecker)
	}

	emitter := buildEmitter(cfg, providers, &a.closers)

	var dispatcher otp.Dispatcher = otp.NewLogDispatcher(log)
	if cfg.OTPReturnToClient && !cfg.IsProduction() {
		a.devStore = buildDevStore(cfg, &a.closers)
		dispatcher = otp.NewDevStoreDispatcher(a.devStore, dispatcher)
		log.Warn("dev OTP mode enabled; codes are readable at GET /dev/otp")
	}

	a.auth = identityservice.NewAuthService(users, otps, txm, tokens, engine, dispatcher,
		identityservice.Config{OTPTTL: cfg.CodeTTL(), MaxAttempts: cfg.OTPMaxAttempts}, log,
		identityservice.WithEmitter(emitter))
	a.users = userservice.NewUserService(users, engine, log, userservice.WithEmitter(emitter))
	return a, nil
}

// buildEngine returns the configured authorization engine and, for OPA, its health checker.
func buildEngine(ctx context.Context, cfg *config.Config, policies policyrepo.Repository, log *zap.Logger) (authz.Engine, health.PolicyChecker, error) {
	if cfg.AuthzEngine != config.AuthzEngineOPA {
		return authz.NewStaticEngine(), nil, nil
	}
	var (
		e   *policyengine.OPAEngine
		err error
	)
	if policies != nil {
		e, err = policyengine.LoadOPAEngine(ctx, policies, log)
	} else {
		e, err = policyengine.NewOPAEngine(ctx, nil, log)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opa engine: %w", err)
	}
	return e, e, nil
}

func buildEmitter(cfg *config.Config, providers *telemetryotel.Providers, closers *[]func(context.Context) error) events.Emitter {
	var multi events.Multi
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.EventsKafkaTopic); kp != nil {
		multi = append(multi, kp)
		*closers = append(*closers, func(context.Context) error { return kp.Close() })
	}
	if cfg.OTLPEndpoint != "" {
		multi = append(multi, telemetryotel.NewEventEmitter(providers.LoggerProvider))
	}
	if len(multi) == 0 {
		return nil
	}
	return multi
}

func buildDevStore(cfg *config.Config, closers *[]func(context.Context) error) devotp.Store {
	if cfg.DevOTPRedisAddr == "" {
		return devotp.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.DevOTPRedisAddr})
	*closers = append(*closers, func(context.Context) error { return client.Close() })
	return devotp.NewRedisStore(client)
}
