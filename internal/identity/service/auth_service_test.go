package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/events"
	otpdomain "passwordless-auth/backend/internal/otp/domain"
	otprepo "passwordless-auth/backend/internal/otp/repository"
	"passwordless-auth/backend/internal/platform/validation"
	"passwordless-auth/backend/internal/security"
	userdomain "passwordless-auth/backend/internal/user/domain"
	userrepo "passwordless-auth/backend/internal/user/repository"
)

// captureDispatcher remembers the last code sent to each email.
type captureDispatcher struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (d *captureDispatcher) Dispatch(ctx context.Context, email, code string, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.codes == nil {
		d.codes = make(map[string]string)
	}
	d.codes[email] = code
	return d.err
}

func (d *captureDispatcher) code(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codes[email]
}

// captureEmitter collects emitted events.
type captureEmitter struct {
	mu     sync.Mutex
	events []*events.Event
	ch     chan struct{}
}

func (e *captureEmitter) Emit(ctx context.Context, ev *events.Event) error {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
	e.ch <- struct{}{}
	return nil
}

func (e *captureEmitter) types() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int)
	for _, ev := range e.events {
		out[ev.Type]++
	}
	return out
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *AuthService
	users    *userrepo.MemoryRepository
	otps     *otprepo.MemoryRepository
	txm      *db.NoopTxManager
	dispatch *captureDispatcher
	tokens   *security.TokenProvider
	clock    *clock
	emitter  *captureEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:    userrepo.NewMemoryRepository(),
		otps:     otprepo.NewMemoryRepository(),
		txm:      db.NewNoopTxManager(),
		dispatch: &captureDispatcher{},
		tokens:   security.NewTestHMACProvider(),
		clock:    &clock{now: time.Now().UTC()},
		emitter:  &captureEmitter{ch: make(chan struct{}, 64)},
	}
	f.svc = NewAuthService(f.users, f.otps, f.txm, f.tokens, authz.NewStaticEngine(), f.dispatch,
		Config{OTPTTL: 5 * time.Minute, MaxAttempts: 5}, nil,
		WithClock(f.clock.Now), WithEmitter(f.emitter))
	return f
}

// wrongCode returns a well-formed code that differs from the one dispatched to email.
func (f *fixture) wrongCode(email string) string {
	if f.dispatch.code(email) == "000000" {
		return "111111"
	}
	return "000000"
}

func (f *fixture) signUp(t *testing.T, email, username string) {
	t.Helper()
	if err := f.svc.SignUp(context.Background(), authz.Guest(), SignUpInput{Email: email, Username: username}); err != nil {
		t.Fatalf("SignUp(%s, %s): %v", email, username, err)
	}
}

func (f *fixture) verifiedUser(t *testing.T, email, username string) *userdomain.User {
	t.Helper()
	f.signUp(t, email, username)
	res, err := f.svc.VerifyEmailWithOTP(context.Background(), VerifyInput{Email: email, Code: f.dispatch.code(email)})
	if err != nil {
		t.Fatalf("VerifyEmailWithOTP: %v", err)
	}
	u, _ := f.users.GetByID(context.Background(), res.User.ID)
	return u
}

func (f *fixture) record(t *testing.T, email string) *otpdomain.Record {
	t.Helper()
	rec, err := f.otps.Get(context.Background(), email)
	if err != nil {
		t.Fatalf("Get otp: %v", err)
	}
	return rec
}

func TestSignUp_CreatesPlaceholderAndOTP(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "  A@B.com ", "alice")

	u, _ := f.users.GetByEmail(context.Background(), "a@b.com")
	if u == nil || u.IsVerified() || u.Username != "alice" || u.Role != authz.RoleRegular {
		t.Fatalf("user = %+v", u)
	}
	rec := f.record(t, "a@b.com")
	if rec == nil || rec.Used || rec.Attempts != 0 {
		t.Fatalf("otp = %+v", rec)
	}
	code := f.dispatch.code("a@b.com")
	if len(code) != 6 || rec.OTPHash == code {
		t.Errorf("code %q must be dispatched and stored only as a hash", code)
	}
	if !rec.ExpiresAt.Equal(f.clock.Now().Add(5 * time.Minute)) {
		t.Errorf("expires_at = %v", rec.ExpiresAt)
	}
	if last := f.txm.Last(); last == nil || !last.Committed() {
		t.Error("sign-up writes should commit in one transaction")
	}
}

func TestSignUp_Authorization(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		actor authz.Actor
		want  error
	}{
		{authz.Guest(), nil},
		{authz.Actor{ID: "a", Role: authz.RoleAdmin}, nil},
		{authz.Actor{ID: "r", Role: authz.RoleRegular}, authz.ErrUnauthorized},
		{authz.Actor{ID: "m", Role: authz.RoleModerator}, authz.ErrUnauthorized},
	}
	for i, tt := range tests {
		t.Run(string(tt.actor.Role), func(t *testing.T) {
			email := string(tt.actor.Role) + "@b.com"
			err := f.svc.SignUp(context.Background(), tt.actor, SignUpInput{Email: email, Username: "user" + string(rune('a'+i))})
			if !errors.Is(err, tt.want) {
				t.Errorf("SignUp as %s: got %v, want %v", tt.actor.Role, err, tt.want)
			}
		})
	}
}

func TestSignUp_Validation(t *testing.T) {
	f := newFixture(t)
	for _, in := range []SignUpInput{
		{Email: "not-an-email", Username: "alice"},
		{Email: "a@b.com", Username: "al"},
		{Email: "a@b.com", Username: "abcdefghijabcdefghijabcdefghijabcdefghijk"},
	} {
		err := f.svc.SignUp(context.Background(), authz.Guest(), in)
		if !validation.IsValidationError(err) {
			t.Errorf("SignUp(%+v): want validation error, got %v", in, err)
		}
	}
}

func TestSignUp_VerifiedIdentifierTaken(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")

	for _, in := range []SignUpInput{
		{Email: "a@b.com", Username: "someone"},
		{Email: "x@y.com", Username: "alice"},
	} {
		err := f.svc.SignUp(context.Background(), authz.Guest(), in)
		if !errors.Is(err, userdomain.ErrUsernameOrEmailTaken) {
			t.Errorf("SignUp(%+v): want ErrUsernameOrEmailTaken, got %v", in, err)
		}
	}
}

func TestSignUp_ReusesUnverifiedPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "a@b.com", "alice")
	first, _ := f.users.GetByEmail(context.Background(), "a@b.com")

	f.clock.Advance(time.Minute)
	f.signUp(t, "a@b.com", "alice2")
	second, _ := f.users.GetByEmail(context.Background(), "a@b.com")
	if second.ID != first.ID {
		t.Errorf("sign-up should reuse placeholder %s, created %s", first.ID, second.ID)
	}
	if second.Username != "alice2" {
		t.Errorf("username = %q, want alice2", second.Username)
	}
	if rec := f.record(t, "a@b.com"); !rec.CreatedAt.After(first.JoinedAt) {
		t.Error("a new OTP should be issued")
	}
}

func TestSignUp_UnverifiedUsernameDoesNotBindOtherEmail(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "a@b.com", "alice")
	f.signUp(t, "c@d.com", "alice")

	a, _ := f.users.GetByEmail(context.Background(), "a@b.com")
	c, _ := f.users.GetByEmail(context.Background(), "c@d.com")
	if a == nil || c == nil || a.ID == c.ID {
		t.Fatalf("each email needs its own placeholder: a=%v c=%v", a, c)
	}
	// The first to verify claims the username.
	if _, err := f.svc.VerifyEmailWithOTP(context.Background(), VerifyInput{Email: "c@d.com", Code: f.dispatch.code("c@d.com")}); err != nil {
		t.Fatalf("verify c: %v", err)
	}
	_, err := f.svc.VerifyEmailWithOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: f.dispatch.code("a@b.com")})
	if !errors.Is(err, userdomain.ErrUsernameOrEmailTaken) {
		t.Fatalf("verify a: want ErrUsernameOrEmailTaken, got %v", err)
	}
	if last := f.txm.Last(); last == nil || !last.RolledBack() {
		t.Error("failed verification should roll back")
	}
}

func TestVerifyEmailWithOTP_Success(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "a@b.com", "alice")

	res, err := f.svc.VerifyEmailWithOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: f.dispatch.code("a@b.com")})
	if err != nil {
		t.Fatalf("VerifyEmailWithOTP: %v", err)
	}
	if res.Token == "" || res.User.EmailStatus != userdomain.EmailVerified {
		t.Fatalf("result = %+v", res)
	}
	claims, err := f.tokens.Verify(res.Token)
	if err != nil {
		t.Fatalf("Verify token: %v", err)
	}
	if claims.Email() != "a@b.com" || claims.ID != res.User.ID || claims.Role != authz.RoleRegular {
		t.Errorf("claims = %+v", claims)
	}
	u, _ := f.users.GetByID(context.Background(), res.User.ID)
	if !u.IsVerified() {
		t.Error("user not persisted as verified")
	}
	rec := f.record(t, "a@b.com")
	if rec == nil || !rec.Used || rec.Attempts != 1 {
		t.Errorf("otp after success = %+v, want kept with used=true attempts=1", rec)
	}
	if !f.txm.Last().Committed() {
		t.Error("verification should commit")
	}
}

func TestVerifyEmailWithOTP_AlreadyVerified(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	_, err := f.svc.VerifyEmailWithOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: f.dispatch.code("a@b.com")})
	if !errors.Is(err, userdomain.ErrUnableToVerifyEmail) {
		t.Errorf("want ErrUnableToVerifyEmail, got %v", err)
	}
}

func TestSignIn(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "pending@b.com", "pending")
	f.verifiedUser(t, "a@b.com", "alice")

	tests := []struct {
		email string
		want  error
	}{
		{"a@b.com", nil},
		{"pending@b.com", userdomain.ErrUnverifiedEmail},
		{"nobody@b.com", userdomain.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := f.svc.SignIn(context.Background(), SignInInput{Email: tt.email})
			if !errors.Is(err, tt.want) {
				t.Errorf("SignIn: got %v, want %v", err, tt.want)
			}
		})
	}
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "bad"}); !validation.IsValidationError(err) {
		t.Errorf("SignIn malformed: want validation error, got %v", err)
	}
	rec := f.record(t, "a@b.com")
	if rec.Used || rec.Attempts != 0 {
		t.Errorf("sign-in should replace the record with a fresh one, got %+v", rec)
	}
}

func TestVerifyOTP_SuccessAndReplay(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	code := f.dispatch.code("a@b.com")

	res, err := f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: code})
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if res.Token == "" {
		t.Fatal("empty token")
	}
	if rec := f.record(t, "a@b.com"); !rec.Used || rec.Attempts != 1 {
		t.Errorf("otp = %+v, want used with attempts=1", rec)
	}

	_, err = f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: code})
	if !errors.Is(err, otpdomain.ErrOTPAlreadyUsed) {
		t.Errorf("replay: want ErrOTPAlreadyUsed, got %v", err)
	}
	if rec := f.record(t, "a@b.com"); rec.Attempts != 2 {
		t.Errorf("replay should still count an attempt, attempts = %d", rec.Attempts)
	}
}

func TestVerifyOTP_Mismatch(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	_, err := f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: f.wrongCode("a@b.com")})
	if !errors.Is(err, otpdomain.ErrInvalidOTP) {
		t.Fatalf("want ErrInvalidOTP, got %v", err)
	}
	if rec := f.record(t, "a@b.com"); rec.Attempts != 1 || rec.Used {
		t.Errorf("otp = %+v, want attempts=1 used=false", rec)
	}
}

func TestVerifyOTP_Expired(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	f.clock.Advance(5 * time.Minute)
	_, err := f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: f.dispatch.code("a@b.com")})
	if !errors.Is(err, otpdomain.ErrOTPExpired) {
		t.Fatalf("want ErrOTPExpired, got %v", err)
	}
	if rec := f.record(t, "a@b.com"); rec.Attempts != 1 || rec.Used {
		t.Errorf("otp = %+v, want attempts=1 used=false", rec)
	}
}

func TestVerifyOTP_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: "123456"})
	if !errors.Is(err, otpdomain.ErrOTPNotFound) {
		t.Errorf("no record: want ErrOTPNotFound, got %v", err)
	}

	rec := otpdomain.NewRecord("ghost@b.com", "h", f.clock.Now(), time.Minute)
	if err := f.otps.Upsert(context.Background(), rec, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	_, err = f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "ghost@b.com", Code: "123456"})
	if !errors.Is(err, userdomain.ErrUserNotFound) {
		t.Errorf("no user: want ErrUserNotFound, got %v", err)
	}
}

func TestVerifyOTP_PendingAccountWithFreshCode(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "p@b.com", "pending")

	res, err := f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "p@b.com", Code: f.dispatch.code("p@b.com")})
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if res.Token == "" {
		t.Error("empty token")
	}
	if rec := f.record(t, "p@b.com"); !rec.Used || rec.Attempts != 1 {
		t.Errorf("otp = %+v, want used with attempts=1", rec)
	}
	u, _ := f.users.GetByEmail(context.Background(), "p@b.com")
	if u.IsVerified() {
		t.Error("VerifyOTP must not verify the email")
	}
}

// staleOTPs serves a fixed snapshot from Get while writes reach the real store.
type staleOTPs struct {
	*otprepo.MemoryRepository
	snapshot *otpdomain.Record
}

func (s *staleOTPs) Get(ctx context.Context, email string) (*otpdomain.Record, error) {
	rec := *s.snapshot
	return &rec, nil
}

func TestVerifyOTP_ExhaustedDeleteKeepsReissuedCode(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	fresh := f.record(t, "a@b.com")

	exhausted := otpdomain.NewRecord("a@b.com", "replaced-hash", f.clock.Now(), 5*time.Minute)
	for i := 0; i < 5; i++ {
		exhausted.IncrementAttempts()
	}
	otps := &staleOTPs{MemoryRepository: f.otps, snapshot: exhausted}
	svc := NewAuthService(f.users, otps, f.txm, f.tokens, authz.NewStaticEngine(), f.dispatch,
		Config{OTPTTL: 5 * time.Minute, MaxAttempts: 5}, nil, WithClock(f.clock.Now))

	_, err := svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: "123456"})
	if !errors.Is(err, otpdomain.ErrTooManyAttempts) {
		t.Fatalf("want ErrTooManyAttempts, got %v", err)
	}
	rec := f.record(t, "a@b.com")
	if rec == nil || rec.OTPHash != fresh.OTPHash {
		t.Errorf("reissued code was deleted: %+v", rec)
	}
}

func TestVerifyOTP_AttemptCapScenario(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	ctx := context.Background()
	wrong := f.wrongCode("a@b.com")

	for i := 1; i <= 4; i++ {
		if _, err := f.svc.VerifyOTP(ctx, VerifyInput{Email: "a@b.com", Code: wrong}); !errors.Is(err, otpdomain.ErrInvalidOTP) {
			t.Fatalf("attempt %d: want ErrInvalidOTP, got %v", i, err)
		}
	}
	if rec := f.record(t, "a@b.com"); rec.Attempts != 4 {
		t.Fatalf("attempts = %d, want 4", rec.Attempts)
	}

	if _, err := f.svc.VerifyOTP(ctx, VerifyInput{Email: "a@b.com", Code: f.dispatch.code("a@b.com")}); err != nil {
		t.Fatalf("5th attempt with the right code: %v", err)
	}
	if rec := f.record(t, "a@b.com"); !rec.Used || rec.Attempts != 5 {
		t.Fatalf("otp = %+v, want used with attempts=5", rec)
	}

	if _, err := f.svc.VerifyOTP(ctx, VerifyInput{Email: "a@b.com", Code: wrong}); !errors.Is(err, otpdomain.ErrTooManyAttempts) {
		t.Fatalf("6th attempt: want ErrTooManyAttempts, got %v", err)
	}
	if rec := f.record(t, "a@b.com"); rec != nil {
		t.Errorf("exhausted record should be deleted, got %+v", rec)
	}
}

func TestVerifyOTP_FiveMisses(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	wrong := f.wrongCode("a@b.com")
	for i := 0; i < 5; i++ {
		_, _ = f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: wrong})
	}
	_, err := f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: f.dispatch.code("a@b.com")})
	if !errors.Is(err, otpdomain.ErrTooManyAttempts) {
		t.Fatalf("right code after five misses: want ErrTooManyAttempts, got %v", err)
	}
	_, err = f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: f.dispatch.code("a@b.com")})
	if !errors.Is(err, otpdomain.ErrOTPNotFound) {
		t.Errorf("after deletion: want ErrOTPNotFound, got %v", err)
	}
}

func TestVerifyOTP_ConcurrentGuessesRespectCap(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	wrong := f.wrongCode("a@b.com")

	const workers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		mismatch int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyOTP(context.Background(), VerifyInput{Email: "a@b.com", Code: wrong})
			switch {
			case errors.Is(err, otpdomain.ErrInvalidOTP):
				mu.Lock()
				mismatch++
				mu.Unlock()
			case errors.Is(err, otpdomain.ErrOTPConflict),
				errors.Is(err, otpdomain.ErrTooManyAttempts),
				errors.Is(err, otpdomain.ErrOTPNotFound):
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if mismatch > 5 {
		t.Errorf("%d guesses were evaluated, want at most 5", mismatch)
	}
	if rec := f.record(t, "a@b.com"); rec != nil && rec.Attempts != mismatch {
		t.Errorf("attempts = %d, want %d counted mismatches", rec.Attempts, mismatch)
	}
}

func TestVerify_InputValidation(t *testing.T) {
	f := newFixture(t)
	for _, in := range []VerifyInput{
		{Email: "a@b.com", Code: "12345"},
		{Email: "a@b.com", Code: "12a456"},
		{Email: "bad", Code: "123456"},
	} {
		if _, err := f.svc.VerifyOTP(context.Background(), in); !validation.IsValidationError(err) {
			t.Errorf("VerifyOTP(%+v): want validation error, got %v", in, err)
		}
	}
}

func TestDispatchFailureDoesNotFailSignIn(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	f.dispatch.err = errors.New("smtp down")
	if err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com"}); err != nil {
		t.Errorf("SignIn: %v", err)
	}
	if f.record(t, "a@b.com") == nil {
		t.Error("record should be issued even when dispatch fails")
	}
}

func TestEventsEmitted(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@b.com", "alice")
	// signed_up, otp.issued, email_verified
	for i := 0; i < 3; i++ {
		select {
		case <-f.emitter.ch:
		case <-time.After(time.Second):
			t.Fatalf("only %d events emitted", i)
		}
	}
	got := f.emitter.types()
	for _, typ := range []string{events.TypeUserSignedUp, events.TypeOTPIssued, events.TypeUserEmailVerified} {
		if got[typ] != 1 {
			t.Errorf("%s emitted %d times", typ, got[typ])
		}
	}
}
