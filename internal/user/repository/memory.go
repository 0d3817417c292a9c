package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"passwordless-auth/backend/internal/db"
	"passwordless-auth/backend/internal/user/domain"
)

// MemoryRepository keeps users in a map and enforces the verified-only uniqueness rule itself.
// Used when no DATABASE_URL is configured and in tests.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*domain.User)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return u.Clone(), nil
}

// best returns the highest ranked candidate: verified first, then preferred, then most recently joined.
func best(cands []*domain.User, preferred func(*domain.User) bool) *domain.User {
	if len(cands) == 0 {
		return nil
	}
	rank := func(u *domain.User) int {
		n := 0
		if u.IsVerified() {
			n += 2
		}
		if preferred != nil && preferred(u) {
			n++
		}
		return n
	}
	sort.SliceStable(cands, func(i, j int) bool {
		ri, rj := rank(cands[i]), rank(cands[j])
		if ri != rj {
			return ri > rj
		}
		return cands[i].JoinedAt.After(cands[j].JoinedAt)
	})
	return cands[0].Clone()
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cands []*domain.User
	for _, u := range r.users {
		if u.Email == email {
			cands = append(cands, u)
		}
	}
	return best(cands, nil), nil
}

func (r *MemoryRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cands []*domain.User
	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			cands = append(cands, u)
		}
	}
	return best(cands, func(u *domain.User) bool { return u.Email == email }), nil
}

func (r *MemoryRepository) VerifiedUsernameExists(ctx context.Context, username, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID != excludeID && u.IsVerified() && u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// conflicts reports whether u, if verified, would share an email or username with another verified user.
func (r *MemoryRepository) conflicts(u *domain.User) (email, username bool) {
	if !u.IsVerified() {
		return false, false
	}
	for _, o := range r.users {
		if o.ID == u.ID || !o.IsVerified() {
			continue
		}
		email = email || o.Email == u.Email
		username = username || o.Username == u.Username
	}
	return email, username
}

func (r *MemoryRepository) Upsert(ctx context.Context, u *domain.User, tx db.Tx) error {
	if err := db.CheckMemoryTx(tx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, n := r.conflicts(u); e || n {
		return domain.ErrUsernameOrEmailTaken
	}
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, id string, fn func(u *domain.User) error) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := cur.Clone()
	if err := fn(u); err != nil {
		return nil, err
	}
	if e, n := r.conflicts(u); n {
		return nil, domain.ErrUsernameTaken
	} else if e {
		return nil, domain.ErrUsernameOrEmailTaken
	}
	r.users[id] = u
	return u.Clone(), nil
}

func (r *MemoryRepository) List(ctx context.Context, p ListParams) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		if p.After != nil && !listsBefore(p.After.JoinedAt, p.After.ID, u.JoinedAt, u.ID, p.Desc) {
			continue
		}
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		return listsBefore(all[i].JoinedAt, all[i].ID, all[j].JoinedAt, all[j].ID, p.Desc)
	})
	if p.Limit > 0 && len(all) > p.Limit {
		all = all[:p.Limit]
	}
	out := make([]*domain.User, len(all))
	for i, u := range all {
		out[i] = u.Clone()
	}
	return out, nil
}

// listsBefore reports whether (at, id) comes strictly before (otherAt, otherID) in list order.
func listsBefore(at time.Time, id string, otherAt time.Time, otherID string, desc bool) bool {
	if !at.Equal(otherAt) {
		if desc {
			return at.After(otherAt)
		}
		return at.Before(otherAt)
	}
	if desc {
		return id > otherID
	}
	return id < otherID
}
