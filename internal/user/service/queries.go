package service

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/platform/validation"
	"passwordless-auth/backend/internal/user/domain"
	"passwordless-auth/backend/internal/user/repository"
)

// Page size bounds for ListUsers.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Sort orders for ListUsers.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

const cursorSep = "|"

// ListInput selects a page of users. First of zero means DefaultPageSize; an empty Sort means SortDesc.
type ListInput struct {
	First int    `form:"first"`
	After string `form:"after"`
	Sort  string `form:"sort"`
}

// EncodeCursor returns the opaque cursor for the list position (joinedAt, id).
func EncodeCursor(joinedAt time.Time, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(joinedAt.UTC().Format(time.RFC3339Nano) + cursorSep + id))
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(c string) (repository.Cursor, error) {
	invalid := validation.NewFieldError("after", "is not a valid cursor")
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return repository.Cursor{}, invalid
	}
	ts, id, ok := strings.Cut(string(raw), cursorSep)
	if !ok || id == "" {
		return repository.Cursor{}, invalid
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return repository.Cursor{}, invalid
	}
	return repository.Cursor{JoinedAt: t, ID: id}, nil
}

// GetUserByID returns the read model of the user id. Requires ViewUser.
func (s *UserService) GetUserByID(ctx context.Context, actor authz.Actor, id string) (rm *domain.UserReadModel, err error) {
	ctx, span := s.startSpan(ctx, "GetUserByID")
	defer func() { endSpan(span, err) }()

	if err := s.engine.Authorize(ctx, actor.Role, authz.ViewUser); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.readModel(u)
}

// GetUserByEmail returns the read model of the account for email. Requires ViewUser.
func (s *UserService) GetUserByEmail(ctx context.Context, actor authz.Actor, email string) (rm *domain.UserReadModel, err error) {
	ctx, span := s.startSpan(ctx, "GetUserByEmail")
	defer func() { endSpan(span, err) }()

	if err := s.engine.Authorize(ctx, actor.Role, authz.ViewUser); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.Var("email", email, "required,email"); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.readModel(u)
}

func (s *UserService) readModel(u *domain.User) (*domain.UserReadModel, error) {
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	rm := u.ReadModel(s.now())
	return &rm, nil
}

// ListUsers returns one page of users ordered by joined_at. Requires ListUsers.
func (s *UserService) ListUsers(ctx context.Context, actor authz.Actor, in ListInput) (conn *domain.UserConnection, err error) {
	ctx, span := s.startSpan(ctx, "ListUsers")
	defer func() { endSpan(span, err) }()

	if err := s.engine.Authorize(ctx, actor.Role, authz.ListUsers); err != nil {
		return nil, err
	}
	p, err := listParams(in)
	if err != nil {
		return nil, err
	}
	first := p.Limit
	p.Limit++
	users, err := s.users.List(ctx, p)
	if err != nil {
		return nil, err
	}

	now := s.now()
	conn = &domain.UserConnection{Nodes: make([]domain.UserReadModel, 0, first)}
	if len(users) > first {
		users = users[:first]
		conn.PageInfo.HasNextPage = true
	}
	for _, u := range users {
		conn.Nodes = append(conn.Nodes, u.ReadModel(now))
	}
	if n := len(users); n > 0 {
		conn.PageInfo.EndCursor = EncodeCursor(users[n-1].JoinedAt, users[n-1].ID)
	}
	return conn, nil
}

func listParams(in ListInput) (repository.ListParams, error) {
	var p repository.ListParams
	switch {
	case in.First < 0:
		return p, validation.NewFieldError("first", "must not be negative")
	case in.First == 0:
		p.Limit = DefaultPageSize
	case in.First > MaxPageSize:
		p.Limit = MaxPageSize
	default:
		p.Limit = in.First
	}
	switch strings.ToLower(in.Sort) {
	case "", SortDesc:
		p.Desc = true
	case SortAsc:
	default:
		return p, validation.NewFieldError("sort", "must be one of: asc desc")
	}
	if in.After != "" {
		c, err := DecodeCursor(in.After)
		if err != nil {
			return p, err
		}
		p.After = &c
	}
	return p, nil
}
