package authz

// Permission is the full internal permission set.
type Permission string

const (
	PermBanUser       Permission = "ban_user"
	PermUnbanUser     Permission = "unban_user"
	PermCreatePost    Permission = "create_post"
	PermDeletePost    Permission = "delete_post"
	PermUpdatePost    Permission = "update_post"
	PermDeleteUser    Permission = "delete_user"
	PermCreateAccount Permission = "create_account"
	PermAwardBadge    Permission = "award_badge"
	PermRevokeBadge   Permission = "revoke_badge"
	PermMakeModerator Permission = "make_moderator"
	PermMakeRegular   Permission = "make_regular"
	PermViewUser      Permission = "view_user"
	PermListUsers     Permission = "list_users"
)

// Permissions lists every Permission.
var Permissions = []Permission{
	PermBanUser, PermUnbanUser, PermCreatePost, PermDeletePost, PermUpdatePost, PermDeleteUser,
	PermCreateAccount, PermAwardBadge, PermRevokeBadge, PermMakeModerator, PermMakeRegular,
	PermViewUser, PermListUsers,
}

// UserPermission is the account-facing subset of Permission that command and query handlers check.
type UserPermission int

const (
	BanUser UserPermission = iota + 1
	UnbanUser
	CreateAccount
	AwardBadge
	RevokeBadge
	MakeModerator
	MakeRegular
	ViewUser
	ListUsers
)

// UserPermissions lists every UserPermission.
var UserPermissions = []UserPermission{
	BanUser, UnbanUser, CreateAccount, AwardBadge, RevokeBadge, MakeModerator, MakeRegular, ViewUser, ListUsers,
}

var userPermissionMap = map[UserPermission]Permission{
	BanUser:       PermBanUser,
	UnbanUser:     PermUnbanUser,
	CreateAccount: PermCreateAccount,
	AwardBadge:    PermAwardBadge,
	RevokeBadge:   PermRevokeBadge,
	MakeModerator: PermMakeModerator,
	MakeRegular:   PermMakeRegular,
	ViewUser:      PermViewUser,
	ListUsers:     PermListUsers,
}

// Permission maps p to its internal Permission. Unknown values map to "".
func (p UserPermission) Permission() Permission {
	return userPermissionMap[p]
}

func (p UserPermission) String() string {
	if perm := p.Permission(); perm != "" {
		return string(perm)
	}
	return "unknown"
}
