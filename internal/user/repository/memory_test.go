package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/user/domain"
)

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func mustUpsert(t *testing.T, r *MemoryRepository, u *domain.User) {
	t.Helper()
	if err := r.Upsert(context.Background(), u, nil); err != nil {
		t.Fatalf("Upsert %s: %v", u.ID, err)
	}
}

func verified(id, email, username string, joined time.Time) *domain.User {
	u := domain.NewUnverified(id, email, username, joined)
	u.EmailStatus = domain.EmailVerified
	return u
}

func TestMemoryRepository_GetByIDMissing(t *testing.T) {
	u, err := NewMemoryRepository().GetByID(context.Background(), "nope")
	if err != nil || u != nil {
		t.Errorf("GetByID missing = (%v, %v), want (nil, nil)", u, err)
	}
}

func TestMemoryRepository_GetByEmailPrefersVerified(t *testing.T) {
	r := NewMemoryRepository()
	mustUpsert(t, r, verified("v", "a@b.com", "alice", base))
	mustUpsert(t, r, domain.NewUnverified("u", "a@b.com", "other", base.Add(time.Hour)))

	got, err := r.GetByEmail(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got.ID != "v" {
		t.Errorf("GetByEmail = %s, want verified account v", got.ID)
	}
}

func TestMemoryRepository_FindByUsernameOrEmail(t *testing.T) {
	tests := []struct {
		name     string
		users    []*domain.User
		username string
		email    string
		wantID   string
	}{
		{"no match", nil, "alice", "a@b.com", ""},
		{"username match", []*domain.User{domain.NewUnverified("1", "x@y.com", "alice", base)}, "alice", "a@b.com", "1"},
		{
			"email match preferred over username match",
			[]*domain.User{
				domain.NewUnverified("1", "x@y.com", "alice", base.Add(time.Hour)),
				domain.NewUnverified("2", "a@b.com", "bob", base),
			},
			"alice", "a@b.com", "2",
		},
		{
			"verified match preferred",
			[]*domain.User{
				domain.NewUnverified("1", "a@b.com", "bob", base),
				verified("2", "x@y.com", "alice", base),
			},
			"alice", "a@b.com", "2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewMemoryRepository()
			for _, u := range tt.users {
				mustUpsert(t, r, u)
			}
			got, err := r.FindByUsernameOrEmail(context.Background(), tt.username, tt.email)
			if err != nil {
				t.Fatalf("FindByUsernameOrEmail: %v", err)
			}
			gotID := ""
			if got != nil {
				gotID = got.ID
			}
			if gotID != tt.wantID {
				t.Errorf("got %q, want %q", gotID, tt.wantID)
			}
		})
	}
}

func TestMemoryRepository_UpsertVerifiedUniqueness(t *testing.T) {
	r := NewMemoryRepository()
	mustUpsert(t, r, verified("1", "a@b.com", "alice", base))
	// Unverified placeholders may share identifiers with a verified account.
	mustUpsert(t, r, domain.NewUnverified("2", "a@b.com", "alice", base))

	err := r.Upsert(context.Background(), verified("3", "c@d.com", "alice", base), nil)
	if !errors.Is(err, domain.ErrUsernameOrEmailTaken) {
		t.Errorf("Upsert clash: want ErrUsernameOrEmailTaken, got %v", err)
	}
}

func TestMemoryRepository_UpsertRejectsForeignTx(t *testing.T) {
	r := NewMemoryRepository()
	err := r.Upsert(context.Background(), domain.NewUnverified("1", "a@b.com", "alice", base), &db.PgTx{})
	if !errors.Is(err, db.ErrInvalidTransaction) {
		t.Errorf("want ErrInvalidTransaction, got %v", err)
	}
}

func TestMemoryRepository_Update(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	mustUpsert(t, r, domain.NewUnverified("1", "a@b.com", "alice", base))

	got, err := r.Update(ctx, "1", func(u *domain.User) error {
		return u.Apply(domain.AwardBadge{Badge: "early"}, base)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.HasBadge("early") {
		t.Errorf("returned user lacks badge: %v", got.Badges)
	}
	stored, _ := r.GetByID(ctx, "1")
	if !stored.HasBadge("early") {
		t.Error("badge not persisted")
	}

	boom := errors.New("boom")
	if _, err := r.Update(ctx, "1", func(u *domain.User) error {
		u.Username = "changed"
		return boom
	}); err != boom {
		t.Errorf("Update should return fn's error unchanged, got %v", err)
	}
	if stored, _ := r.GetByID(ctx, "1"); stored.Username != "alice" {
		t.Error("failed update was persisted")
	}

	if _, err := r.Update(ctx, "missing", func(*domain.User) error { return nil }); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("Update missing: want ErrUserNotFound, got %v", err)
	}
}

func TestMemoryRepository_UpdateUsernameClash(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	mustUpsert(t, r, verified("1", "a@b.com", "alice", base))
	mustUpsert(t, r, verified("2", "c@d.com", "carol", base))

	_, err := r.Update(ctx, "2", func(u *domain.User) error {
		return u.Apply(domain.ChangeUsername{New: "alice"}, base)
	})
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Errorf("want ErrUsernameTaken, got %v", err)
	}
	exists, err := r.VerifiedUsernameExists(ctx, "alice", "2")
	if err != nil || !exists {
		t.Errorf("VerifiedUsernameExists = (%v, %v), want true", exists, err)
	}
	exists, _ = r.VerifiedUsernameExists(ctx, "alice", "1")
	if exists {
		t.Error("VerifiedUsernameExists should ignore the excluded id")
	}
}

func TestMemoryRepository_List(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	for i, id := range []string{"a", "b", "c", "d"} {
		mustUpsert(t, r, domain.NewUnverified(id, id+"@x.com", "user_"+id, base.Add(time.Duration(i)*time.Hour)))
	}

	asc, err := r.List(ctx, ListParams{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(asc) != 2 || asc[0].ID != "a" || asc[1].ID != "b" {
		t.Fatalf("asc page = %v", ids(asc))
	}
	after := Cursor{JoinedAt: asc[1].JoinedAt, ID: asc[1].ID}
	next, _ := r.List(ctx, ListParams{Limit: 10, After: &after})
	if got := ids(next); len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Errorf("asc after b = %v", got)
	}

	desc, _ := r.List(ctx, ListParams{Limit: 3, Desc: true})
	if got := ids(desc); len(got) != 3 || got[0] != "d" || got[2] != "b" {
		t.Errorf("desc page = %v", got)
	}
	after = Cursor{JoinedAt: desc[2].JoinedAt, ID: desc[2].ID}
	rest, _ := r.List(ctx, ListParams{Limit: 3, Desc: true, After: &after})
	if got := ids(rest); len(got) != 1 || got[0] != "a" {
		t.Errorf("desc after b = %v", got)
	}
}

func TestMemoryRepository_ListTiedJoinedAt(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	for _, id := range []string{"c", "a", "b"} {
		mustUpsert(t, r, domain.NewUnverified(id, id+"@x.com", "user_"+id, base))
	}

	for _, tt := range []struct {
		name string
		desc bool
		want []string
	}{
		{"asc", false, []string{"a", "b", "c"}},
		{"desc", true, []string{"c", "b", "a"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			var after *Cursor
			for i := 0; i < 5; i++ {
				page, err := r.List(ctx, ListParams{Limit: 1, Desc: tt.desc, After: after})
				if err != nil {
					t.Fatalf("List: %v", err)
				}
				if len(page) == 0 {
					break
				}
				got = append(got, page[0].ID)
				after = &Cursor{JoinedAt: page[0].JoinedAt, ID: page[0].ID}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("paged = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("paged = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func ids(us []*domain.User) []string {
	out := make([]string, len(us))
	for i, u := range us {
		out[i] = u.ID
	}
	return out
}
