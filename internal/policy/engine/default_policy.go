package engine

// DefaultPolicyPackage is the Rego package every authorization module must declare.
const DefaultPolicyPackage = "passwordless.authz"

// DefaultRegoPolicy mirrors the built-in role table and username ownership rule.
const DefaultRegoPolicy = `package passwordless.authz

default allow := false

default can_change_username := false

role_permissions := {
	"moderator": {"view_user", "list_users", "ban_user", "unban_user"},
	"regular": {"view_user"},
	"guest": {"create_account"},
}

allow if input.role == "admin"

allow if input.permission in role_permissions[input.role]

can_change_username if input.actor.role == "admin"

can_change_username if {
	input.actor.role in {"regular", "moderator"}
	input.actor.id != ""
	input.target_id == input.actor.id
}
`
