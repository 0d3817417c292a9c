// Package service implements the passwordless sign-up, sign-in, and OTP verification commands.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/events"
	"passwordless-auth/backend/internal/otp"
	otpdomain "passwordless-auth/backend/internal/otp/domain"
	"passwordless-auth/backend/internal/platform/logger"
	"passwordless-auth/backend/internal/platform/validation"
	"passwordless-auth/backend/internal/security"
	userdomain "passwordless-auth/backend/internal/user/domain"
)

const instrumentationName = "passwordless-auth/identity"

// UserRepo is the user repository needed by the auth service.
type UserRepo interface {
	UserWriter
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*userdomain.User, error)
}

// OTPRepo is the OTP repository needed by the auth service.
type OTPRepo interface {
	OTPWriter
	Get(ctx context.Context, email string) (*otpdomain.Record, error)
	Delete(ctx context.Context, email, otpHash string) error
}

// SignUpInput is the SignUp payload.
type SignUpInput struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=40"`
}

// SignInInput is the SignIn payload.
type SignInInput struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyInput is the payload of VerifyOTP and VerifyEmailWithOTP.
type VerifyInput struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// AuthResult is returned by a successful verification.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      userdomain.UserReadModel
}

// Config holds the OTP policy.
type Config struct {
	OTPTTL      time.Duration
	MaxAttempts int
}

// Option configures optional AuthService collaborators.
type Option func(*AuthService)

// WithEmitter publishes account events to em.
func WithEmitter(em events.Emitter) Option {
	return func(s *AuthService) { s.events = em }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.nowF = now }
}

// AuthService implements SignUp, SignIn, VerifyOTP, and VerifyEmailWithOTP.
type AuthService struct {
	users       UserRepo
	otps        OTPRepo
	writer      *AccountWriter
	tokens      security.Issuer
	engine      authz.Engine
	dispatcher  otp.Dispatcher
	events      events.Emitter
	log         *zap.Logger
	nowF        func() time.Time
	ttl         time.Duration
	maxAttempts int

	tracer        trace.Tracer
	verifications metric.Int64Counter
	issued        metric.Int64Counter
}

// NewAuthService returns an AuthService. Zero Config values fall back to a five minute TTL and five attempts.
func NewAuthService(
	users UserRepo,
	otps OTPRepo,
	txm db.TxManager,
	tokens security.Issuer,
	engine authz.Engine,
	dispatcher otp.Dispatcher,
	cfg Config,
	log *zap.Logger,
	opts ...Option,
) *AuthService {
	log = logger.OrNop(log).Named("identity")
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = otpdomain.DefaultTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = otpdomain.DefaultMaxAttempts
	}
	if dispatcher == nil {
		dispatcher = otp.NewLogDispatcher(log)
	}
	s := &AuthService{
		users:       users,
		otps:        otps,
		writer:      NewAccountWriter(txm, users, otps),
		tokens:      tokens,
		engine:      engine,
		dispatcher:  dispatcher,
		log:         log,
		nowF:        time.Now,
		ttl:         cfg.OTPTTL,
		maxAttempts: cfg.MaxAttempts,
		tracer:      otel.Tracer(instrumentationName),
	}
	meter := otel.Meter(instrumentationName)
	var err error
	if s.verifications, err = meter.Int64Counter("otp.verifications", metric.WithDescription("OTP verification attempts by outcome")); err != nil {
		s.verifications = noop.Int64Counter{}
	}
	if s.issued, err = meter.Int64Counter("otp.issued", metric.WithDescription("OTP codes issued")); err != nil {
		s.issued = noop.Int64Counter{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *AuthService) now() time.Time { return s.nowF().UTC() }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "identity."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SignUp registers or reuses an unverified placeholder for the email and username and issues an OTP.
// A verified account matching either identifier fails with ErrUsernameOrEmailTaken.
func (s *AuthService) SignUp(ctx context.Context, actor authz.Actor, in SignUpInput) (err error) {
	ctx, span := s.startSpan(ctx, "SignUp")
	defer func() { endSpan(span, err) }()

	if err := s.engine.Authorize(ctx, actor.Role, authz.CreateAccount); err != nil {
		return err
	}
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return err
	}

	existing, err := s.users.FindByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return err
	}
	now := s.now()
	var u *userdomain.User
	switch {
	case existing != nil && existing.IsVerified():
		return userdomain.ErrUsernameOrEmailTaken
	case existing != nil && existing.Email == in.Email:
		u = existing
		u.Username = in.Username
		u.UpdatedAt = now
	default:
		u = userdomain.NewUnverified(uuid.NewString(), in.Email, in.Username, now)
	}

	code, rec, err := s.newOTP(in.Email, now)
	if err != nil {
		return err
	}
	if err := s.writer.CreateAccount(ctx, u, rec); err != nil {
		return err
	}
	s.log.Info("sign-up accepted", zap.String("user_id", u.ID), zap.Bool("reused", existing != nil && existing.ID == u.ID))
	s.emit(ctx, events.New(events.TypeUserSignedUp, u.ID, u.Email, now).With("username", u.Username))
	s.deliver(ctx, rec, code, u.ID)
	return nil
}

// SignIn issues a new OTP for a verified account.
func (s *AuthService) SignIn(ctx context.Context, in SignInInput) (err error) {
	ctx, span := s.startSpan(ctx, "SignIn")
	defer func() { endSpan(span, err) }()

	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return err
	}
	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return err
	}
	if u == nil {
		return userdomain.ErrUserNotFound
	}
	if !u.IsVerified() {
		return userdomain.ErrUnverifiedEmail
	}
	code, rec, err := s.newOTP(in.Email, s.now())
	if err != nil {
		return err
	}
	if err := s.writer.IssueOTP(ctx, rec); err != nil {
		return err
	}
	s.deliver(ctx, rec, code, u.ID)
	return nil
}

func (s *AuthService) newOTP(email string, now time.Time) (string, *otpdomain.Record, error) {
	code, err := otp.GenerateCode()
	if err != nil {
		return "", nil, err
	}
	return code, otpdomain.NewRecord(email, otp.HashCode(code), now, s.ttl), nil
}

// deliver hands the committed code to the dispatcher. A dispatch failure is logged only; the client
// can request a new code.
func (s *AuthService) deliver(ctx context.Context, rec *otpdomain.Record, code, userID string) {
	s.issued.Add(ctx, 1)
	if err := s.dispatcher.Dispatch(ctx, rec.Email, code, rec.ExpiresAt); err != nil {
		s.log.Error("otp dispatch failed", zap.String("user_id", userID), zap.Error(err))
	}
	s.emit(ctx, events.New(events.TypeOTPIssued, userID, rec.Email, rec.CreatedAt))
}

// VerifyOTP checks code for the account holding email and returns a signed credential on success.
func (s *AuthService) VerifyOTP(ctx context.Context, in VerifyInput) (res *AuthResult, err error) {
	ctx, span := s.startSpan(ctx, "VerifyOTP")
	defer func() {
		s.recordOutcome(ctx, "sign_in", err)
		endSpan(span, err)
	}()

	rec, u, err := s.load(ctx, &in)
	if err != nil {
		return nil, err
	}
	expected, err := s.checkCode(ctx, rec, in.Code)
	if err != nil {
		return nil, err
	}
	rec.MarkUsed()
	rec.IncrementAttempts()
	if err := s.otps.CompareAndSwap(ctx, rec, expected, nil); err != nil {
		return nil, err
	}
	res, err = s.issue(u)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.New(events.TypeOTPVerified, u.ID, u.Email, s.now()))
	return res, nil
}

// VerifyEmailWithOTP checks code for a pending account, marks its email verified, and returns a signed credential.
func (s *AuthService) VerifyEmailWithOTP(ctx context.Context, in VerifyInput) (res *AuthResult, err error) {
	ctx, span := s.startSpan(ctx, "VerifyEmailWithOTP")
	defer func() {
		s.recordOutcome(ctx, "verify_email", err)
		endSpan(span, err)
	}()

	rec, u, err := s.load(ctx, &in)
	if err != nil {
		return nil, err
	}
	expected, err := s.checkCode(ctx, rec, in.Code)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := u.Apply(userdomain.VerifyEmail{}, now); err != nil {
		return nil, err
	}
	rec.MarkUsed()
	rec.IncrementAttempts()
	if err := s.writer.VerifyEmail(ctx, u, rec, expected); err != nil {
		return nil, err
	}
	res, err = s.issue(u)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.New(events.TypeUserEmailVerified, u.ID, u.Email, now))
	return res, nil
}

// load normalizes and validates in, then fetches the OTP record and the account it belongs to.
func (s *AuthService) load(ctx context.Context, in *VerifyInput) (*otpdomain.Record, *userdomain.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Code = strings.TrimSpace(in.Code)
	if err := validation.Struct(in); err != nil {
		return nil, nil, err
	}
	rec, err := s.otps.Get(ctx, in.Email)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, otpdomain.ErrOTPNotFound
	}
	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		return nil, nil, userdomain.ErrUserNotFound
	}
	return rec, u, nil
}

// checkCode runs the lifecycle checks and the comparison. Every failed attempt is persisted before
// its error is returned; an exhausted record is deleted instead. On a match it returns the attempt
// count the caller's compare-and-swap must expect.
func (s *AuthService) checkCode(ctx context.Context, rec *otpdomain.Record, code string) (int, error) {
	expected := rec.Attempts
	if err := rec.Validate(s.now(), s.maxAttempts); err != nil {
		if errors.Is(err, otpdomain.ErrTooManyAttempts) {
			if derr := s.otps.Delete(ctx, rec.Email, rec.OTPHash); derr != nil {
				return 0, derr
			}
			return 0, err
		}
		rec.IncrementAttempts()
		if perr := s.otps.CompareAndSwap(ctx, rec, expected, nil); perr != nil && !errors.Is(perr, otpdomain.ErrOTPConflict) {
			return 0, perr
		}
		return 0, err
	}
	if !otp.CodeEqual(code, rec.OTPHash) {
		rec.IncrementAttempts()
		if err := s.otps.CompareAndSwap(ctx, rec, expected, nil); err != nil {
			return 0, err
		}
		return 0, otpdomain.ErrInvalidOTP
	}
	return expected, nil
}

func (s *AuthService) issue(u *userdomain.User) (*AuthResult, error) {
	token, exp, err := s.tokens.Issue(u.Email, u.Role, u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: exp, User: u.ReadModel(s.now())}, nil
}

func (s *AuthService) emit(ctx context.Context, ev *events.Event) {
	events.EmitAsync(ctx, s.events, ev, s.log)
}

func (s *AuthService) recordOutcome(ctx context.Context, flow string, err error) {
	s.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome(err)),
	))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, otpdomain.ErrInvalidOTP):
		return "mismatch"
	case errors.Is(err, otpdomain.ErrOTPExpired):
		return "expired"
	case errors.Is(err, otpdomain.ErrOTPAlreadyUsed):
		return "already_used"
	case errors.Is(err, otpdomain.ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, otpdomain.ErrOTPNotFound):
		return "not_found"
	default:
		return "error"
	}
}
