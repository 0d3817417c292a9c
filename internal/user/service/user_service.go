// Package service implements the account commands (ban, badges, roles, username) and the user queries.
package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/events"
	"passwordless-auth/backend/internal/platform/logger"
	"passwordless-auth/backend/internal/platform/validation"
	"passwordless-auth/backend/internal/user/domain"
	"passwordless-auth/backend/internal/user/repository"
)

const instrumentationName = "passwordless-auth/user"

// UserRepo is the user repository needed by UserService.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	VerifiedUsernameExists(ctx context.Context, username, excludeID string) (bool, error)
	Update(ctx context.Context, id string, fn func(u *domain.User) error) (*domain.User, error)
	List(ctx context.Context, p repository.ListParams) ([]*domain.User, error)
}

// BanInput is the BanUser payload. From and To are required for definite bans.
type BanInput struct {
	Reason string     `json:"reason" validate:"required"`
	Type   string     `json:"type" validate:"required,oneof=indefinite definite"`
	From   *time.Time `json:"from"`
	To     *time.Time `json:"to"`
}

// Option configures optional UserService collaborators.
type Option func(*UserService)

// WithEmitter publishes account events to em.
func WithEmitter(em events.Emitter) Option {
	return func(s *UserService) { s.events = em }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *UserService) { s.nowF = now }
}

// UserService runs account commands and queries on behalf of an actor.
type UserService struct {
	users  UserRepo
	engine authz.Engine
	events events.Emitter
	log    *zap.Logger
	nowF   func() time.Time
	tracer trace.Tracer
}

// NewUserService returns a UserService.
func NewUserService(users UserRepo, engine authz.Engine, log *zap.Logger, opts ...Option) *UserService {
	s := &UserService{
		users:  users,
		engine: engine,
		log:    logger.OrNop(log).Named("user"),
		nowF:   time.Now,
		tracer: otel.Tracer(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *UserService) now() time.Time { return s.nowF().UTC() }

func (s *UserService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "user."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// apply persists upd on the user id and emits eventType with attrs on success. The caller has
// already authorized actor.
func (s *UserService) apply(ctx context.Context, actor authz.Actor, id string, upd domain.Update, eventType string, attrs ...string) (*domain.UserReadModel, error) {
	now := s.now()
	u, err := s.users.Update(ctx, id, func(u *domain.User) error {
		return u.Apply(upd, now)
	})
	if err != nil {
		return nil, err
	}
	logger.WithUserID(s.log, u.ID).Info("account updated", zap.String("update", upd.Name()), zap.String("actor_id", actor.ID))

	ev := events.New(eventType, u.ID, u.Email, now)
	ev.ActorID = actor.ID
	for i := 0; i+1 < len(attrs); i += 2 {
		ev.With(attrs[i], attrs[i+1])
	}
	events.EmitAsync(ctx, s.events, ev, s.log)

	rm := u.ReadModel(now)
	return &rm, nil
}

func (s *UserService) command(ctx context.Context, name string, actor authz.Actor, perm authz.UserPermission, id string, upd domain.Update, eventType string, attrs ...string) (rm *domain.UserReadModel, err error) {
	ctx, span := s.startSpan(ctx, name)
	defer func() { endSpan(span, err) }()

	if err := s.engine.Authorize(ctx, actor.Role, perm); err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, id, upd, eventType, attrs...)
}

// BanUser bans the user id. Requires BanUser.
func (s *UserService) BanUser(ctx context.Context, actor authz.Actor, id string, in BanInput) (rm *domain.UserReadModel, err error) {
	ctx, span := s.startSpan(ctx, "BanUser")
	defer func() { endSpan(span, err) }()

	if err := s.engine.Authorize(ctx, actor.Role, authz.BanUser); err != nil {
		return nil, err
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	ban := domain.Ban{Reason: in.Reason, Type: domain.BanType(in.Type)}
	if ban.Type == domain.BanDefinite {
		if in.From == nil || in.To == nil {
			return nil, validation.NewFieldError("to", "from and to are required for a definite ban")
		}
		ban.From, ban.To = in.From.UTC(), in.To.UTC()
	}
	return s.apply(ctx, actor, id, ban, events.TypeUserBanned, "reason", ban.Reason, "type", string(ban.Type))
}

// UnbanUser lifts any ban on the user id. Requires UnbanUser.
func (s *UserService) UnbanUser(ctx context.Context, actor authz.Actor, id string) (*domain.UserReadModel, error) {
	return s.command(ctx, "UnbanUser", actor, authz.UnbanUser, id, domain.Unban{}, events.TypeUserUnbanned)
}

// AwardBadge adds badge to the user id. Awarding a held badge is a no-op. Requires AwardBadge.
func (s *UserService) AwardBadge(ctx context.Context, actor authz.Actor, id, badge string) (*domain.UserReadModel, error) {
	badge = strings.TrimSpace(badge)
	return s.command(ctx, "AwardBadge", actor, authz.AwardBadge, id, domain.AwardBadge{Badge: badge}, events.TypeUserBadgeAwarded, "badge", badge)
}

// RevokeBadge removes badge from the user id. Requires RevokeBadge.
func (s *UserService) RevokeBadge(ctx context.Context, actor authz.Actor, id, badge string) (*domain.UserReadModel, error) {
	badge = strings.TrimSpace(badge)
	return s.command(ctx, "RevokeBadge", actor, authz.RevokeBadge, id, domain.RevokeBadge{Badge: badge}, events.TypeUserBadgeRevoked, "badge", badge)
}

// MakeModerator promotes the user id. Requires MakeModerator.
func (s *UserService) MakeModerator(ctx context.Context, actor authz.Actor, id string) (*domain.UserReadModel, error) {
	return s.command(ctx, "MakeModerator", actor, authz.MakeModerator, id, domain.MakeModerator{}, events.TypeUserRoleChanged,
		"role", string(authz.RoleModerator))
}

// MakeRegular demotes the user id to Regular. Requires MakeRegular.
func (s *UserService) MakeRegular(ctx context.Context, actor authz.Actor, id string) (*domain.UserReadModel, error) {
	return s.command(ctx, "MakeRegular", actor, authz.MakeRegular, id, domain.MakeRegular{}, events.TypeUserRoleChanged,
		"role", string(authz.RoleRegular))
}

// ChangeUsername renames the user id. Admins may rename anyone; other accounts only themselves.
// A username held by another verified account fails with ErrUsernameTaken.
func (s *UserService) ChangeUsername(ctx context.Context, actor authz.Actor, id, username string) (rm *domain.UserReadModel, err error) {
	ctx, span := s.startSpan(ctx, "ChangeUsername")
	defer func() { endSpan(span, err) }()

	if err := s.engine.CanChangeUsername(ctx, id, actor); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if err := validation.Var("username", username, "required,min=3,max=40"); err != nil {
		return nil, err
	}
	taken, err := s.users.VerifiedUsernameExists(ctx, username, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrUsernameTaken
	}
	return s.apply(ctx, actor, id, domain.ChangeUsername{New: username}, events.TypeUserUsernameChanged, "username", username)
}
