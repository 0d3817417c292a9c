package authz

import (
	"context"
	"testing"
)

func TestStaticEngine_AdminHasEveryPermission(t *testing.T) {
	e := NewStaticEngine()
	for _, p := range UserPermissions {
		if err := e.Authorize(context.Background(), RoleAdmin, p); err != nil {
			t.Errorf("Authorize(admin, %s) = %v, want nil", p, err)
		}
	}
}

func TestStaticEngine_Table(t *testing.T) {
	allowed := map[Role]map[UserPermission]bool{
		RoleModerator: {ViewUser: true, ListUsers: true, BanUser: true, UnbanUser: true},
		RoleRegular:   {ViewUser: true},
		RoleGuest:     {CreateAccount: true},
	}
	e := NewStaticEngine()
	for role, perms := range allowed {
		for _, p := range UserPermissions {
			err := e.Authorize(context.Background(), role, p)
			if perms[p] && err != nil {
				t.Errorf("Authorize(%s, %s) = %v, want nil", role, p, err)
			}
			if !perms[p] && err != ErrUnauthorized {
				t.Errorf("Authorize(%s, %s) = %v, want ErrUnauthorized", role, p, err)
			}
		}
	}
}

func TestStaticEngine_GuestCannotBan(t *testing.T) {
	if err := NewStaticEngine().Authorize(context.Background(), RoleGuest, BanUser); err != ErrUnauthorized {
		t.Errorf("Authorize(guest, ban) = %v, want ErrUnauthorized", err)
	}
}

func TestStaticEngine_UnknownRoleAndPermission(t *testing.T) {
	e := NewStaticEngine()
	if err := e.Authorize(context.Background(), Role("superuser"), ViewUser); err != ErrUnauthorized {
		t.Errorf("unknown role: want ErrUnauthorized, got %v", err)
	}
	if err := e.Authorize(context.Background(), RoleModerator, UserPermission(99)); err != ErrUnauthorized {
		t.Errorf("unknown permission: want ErrUnauthorized, got %v", err)
	}
}

func TestStaticEngine_CanChangeUsername(t *testing.T) {
	cases := []struct {
		name   string
		target string
		actor  Actor
		ok     bool
	}{
		{"regular self", "u1", Actor{ID: "u1", Role: RoleRegular}, true},
		{"regular other", "u2", Actor{ID: "u1", Role: RoleRegular}, false},
		{"moderator self", "m1", Actor{ID: "m1", Role: RoleModerator}, true},
		{"moderator other", "u2", Actor{ID: "m1", Role: RoleModerator}, false},
		{"admin other", "u2", Actor{ID: "a1", Role: RoleAdmin}, true},
		{"admin any", "anything", Actor{Role: RoleAdmin}, true},
		{"guest", "u1", Guest(), false},
		{"guest with matching empty id", "", Guest(), false},
		{"regular with empty ids", "", Actor{Role: RoleRegular}, false},
	}
	e := NewStaticEngine()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := e.CanChangeUsername(context.Background(), tc.target, tc.actor)
			if tc.ok && err != nil {
				t.Errorf("CanChangeUsername = %v, want nil", err)
			}
			if !tc.ok && err != ErrUnauthorized {
				t.Errorf("CanChangeUsername = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestUserPermission_MapsIntoPermission(t *testing.T) {
	seen := make(map[Permission]bool)
	for _, p := range UserPermissions {
		perm := p.Permission()
		if perm == "" {
			t.Errorf("%d has no Permission", p)
		}
		if seen[perm] {
			t.Errorf("%s mapped twice", perm)
		}
		seen[perm] = true
	}
	all := make(map[Permission]bool)
	for _, p := range Permissions {
		all[p] = true
	}
	for p := range seen {
		if !all[p] {
			t.Errorf("%s is not in Permissions", p)
		}
	}
	if UserPermission(0).String() != "unknown" {
		t.Errorf("zero UserPermission String = %q", UserPermission(0).String())
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(" " + string(r) + " ")
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = (%q, %v)", r, got, err)
		}
	}
	if got, err := ParseRole("ADMIN"); err != nil || got != RoleAdmin {
		t.Errorf("ParseRole(ADMIN) = (%q, %v)", got, err)
	}
	if _, err := ParseRole("root"); err == nil {
		t.Error("ParseRole(root) should fail")
	}
}

func TestActor_IsGuest(t *testing.T) {
	if !Guest().IsGuest() {
		t.Error("Guest() should be a guest")
	}
	if !(Actor{}).IsGuest() {
		t.Error("zero Actor should be a guest")
	}
	if (Actor{ID: "u1", Role: RoleRegular}).IsGuest() {
		t.Error("regular actor is not a guest")
	}
}
