// Package authz holds the static role-to-permission table. The table is
// immutable at runtime and lookups are pure, so authorization decisions
// are deterministic and can be re-evaluated on every request.
package authz

import "github.com/cryptoadmin/api/internal/domain"

var rolePermissions = map[domain.Role][]string{
	domain.RoleAdmin: {
		"users.view",
		"users.create",
		"users.edit",
		"users.delete",
		"transactions.view",
		"transactions.edit",
		"transactions.delete",
		"analytics.view",
		"analytics.export",
		"settings.view",
		"settings.edit",
		"dashboard.view",
		"reports.generate",
	},
	domain.RoleManager: {
		"users.view",
		"users.edit",
		"transactions.view",
		"transactions.edit",
		"analytics.view",
		"analytics.export",
		"dashboard.view",
		"reports.generate",
	},
	domain.RoleUser: {
		"dashboard.view",
		"transactions.view",
		"analytics.view",
	},
}

// Permissions returns the capability strings granted to a role. Unknown
// roles resolve to an empty set. The returned slice is a copy.
func Permissions(role domain.Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether the role grants the named capability.
func HasPermission(role domain.Role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
