// Package authz decides whether an actor may run a command: role-based checks against a fixed
// permission table, and the ownership check that gates username changes.
package authz

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned by every failed authorization check.
var ErrUnauthorized = errors.New("unauthorized")

// Engine is the authorization contract used by command and query handlers.
// Both checks are synchronous; ctx bounds policy evaluation in engines that need it.
type Engine interface {
	// Authorize returns nil when role holds perm.
	Authorize(ctx context.Context, role Role, perm UserPermission) error
	// CanChangeUsername returns nil when actor may rename the user targetID.
	CanChangeUsername(ctx context.Context, targetID string, actor Actor) error
}

// RolePermissions returns the role table. Admin is absent because it holds every permission.
func RolePermissions() map[Role][]Permission {
	return map[Role][]Permission{
		RoleModerator: {PermViewUser, PermListUsers, PermBanUser, PermUnbanUser},
		RoleRegular:   {PermViewUser},
		RoleGuest:     {PermCreateAccount},
	}
}

// StaticEngine evaluates the built-in role table.
type StaticEngine struct {
	table map[Role]map[Permission]struct{}
}

var _ Engine = (*StaticEngine)(nil)

// NewStaticEngine returns an engine over RolePermissions.
func NewStaticEngine() *StaticEngine {
	table := make(map[Role]map[Permission]struct{})
	for role, perms := range RolePermissions() {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		table[role] = set
	}
	return &StaticEngine{table: table}
}

// Authorize lets Admin through unconditionally and looks every other role up in the table.
func (e *StaticEngine) Authorize(_ context.Context, role Role, perm UserPermission) error {
	if role == RoleAdmin {
		return nil
	}
	set, ok := e.table[role]
	if !ok {
		return ErrUnauthorized
	}
	if _, ok := set[perm.Permission()]; !ok {
		return ErrUnauthorized
	}
	return nil
}

// CanChangeUsername allows Admin always, Regular and Moderator only on their own account, and Guest never.
func (e *StaticEngine) CanChangeUsername(_ context.Context, targetID string, actor Actor) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleRegular, RoleModerator:
		if actor.ID != "" && targetID == actor.ID {
			return nil
		}
	}
	return ErrUnauthorized
}
