// Package policy holds the static role policy: which roles exist, what each
// role may do, and which API paths require authentication or the admin role.
// The tables are built once at process start and never mutated.
package policy

import "strings"

// Role is a user's role. Unknown values never match any permission.
type Role string

const (
	RoleUser      Role = "user"
	RoleVolunteer Role = "volunteer"
	RoleAdmin     Role = "admin"
)

// Roles lists every valid role, lowest rank first.
var Roles = []Role{RoleUser, RoleVolunteer, RoleAdmin}

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleUser, RoleVolunteer, RoleAdmin:
		return r, true
	}
	return "", false
}

// Valid reports whether r is one of the known roles, exactly as spelled.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleVolunteer, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Permission is a named capability granted to roles.
type Permission string

const (
	CreateUser       Permission = "create_user"
	ReadUser         Permission = "read_user"
	UpdateUser       Permission = "update_user"
	DeleteUser       Permission = "delete_user"
	CreateReport     Permission = "create_report"
	ReadReport       Permission = "read_report"
	UpdateReport     Permission = "update_report"
	DeleteReport     Permission = "delete_report"
	VerifyReport     Permission = "verify_report"
	ViewAllReports   Permission = "view_all_reports"
	ViewLocalReports Permission = "view_local_reports"
	ViewOwnReports   Permission = "view_own_reports"
	AccessAnalytics  Permission = "access_analytics"
	ManageRoles      Permission = "manage_roles"
)

// Policy is the immutable role policy table.
type Policy struct {
	permissions     map[Role]map[Permission]struct{}
	protectedRoutes []string
	adminRoutes     []string
}

// Default returns the application's role policy.
func Default() *Policy {
	return New(
		map[Role][]Permission{
			RoleAdmin: {
				CreateUser, ReadUser, UpdateUser, DeleteUser,
				CreateReport, ReadReport, UpdateReport, DeleteReport,
				VerifyReport, ViewAllReports, AccessAnalytics, ManageRoles,
			},
			RoleVolunteer: {
				ReadUser, CreateReport, ReadReport, UpdateReport,
				VerifyReport, ViewLocalReports,
			},
			RoleUser: {
				ReadUser, CreateReport, ReadReport, UpdateReport, ViewOwnReports,
			},
		},
		[]string{"/api/reports", "/api/users", "/api/upload", "/api/admin"},
		[]string{"/api/admin"},
	)
}

// New builds a policy from a role table and two route prefix lists. The
// inputs are copied.
func New(table map[Role][]Permission, protected, admin []string) *Policy {
	p := &Policy{
		permissions:     make(map[Role]map[Permission]struct{}, len(table)),
		protectedRoutes: append([]string(nil), protected...),
		adminRoutes:     append([]string(nil), admin...),
	}
	for role, perms := range table {
		set := make(map[Permission]struct{}, len(perms))
		for _, perm := range perms {
			set[perm] = struct{}{}
		}
		p.permissions[role] = set
	}
	return p
}

// IsProtectedRoute reports whether path requires a verified identity.
func (p *Policy) IsProtectedRoute(path string) bool {
	return matchPrefix(path, p.protectedRoutes)
}

// IsAdminRoute reports whether path requires the admin role.
func (p *Policy) IsAdminRoute(path string) bool {
	return matchPrefix(path, p.adminRoutes)
}

// HasPermission reports whether role holds perm. Unknown roles hold nothing.
func (p *Policy) HasPermission(role Role, perm Permission) bool {
	set, ok := p.permissions[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// HasAny reports whether role holds at least one of perms.
func (p *Policy) HasAny(role Role, perms ...Permission) bool {
	for _, perm := range perms {
		if p.HasPermission(role, perm) {
			return true
		}
	}
	return false
}

// Permissions returns the permissions held by role in a stable order.
func (p *Policy) Permissions(role Role) []Permission {
	var out []Permission
	for _, perm := range allPermissions {
		if p.HasPermission(role, perm) {
			out = append(out, perm)
		}
	}
	return out
}

var allPermissions = []Permission{
	CreateUser, ReadUser, UpdateUser, DeleteUser,
	CreateReport, ReadReport, UpdateReport, DeleteReport,
	VerifyReport, ViewAllReports, ViewLocalReports, ViewOwnReports,
	AccessAnalytics, ManageRoles,
}

// Rank orders roles for UI visibility filtering only. Authorization never
// consults it.
func Rank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleVolunteer:
		return 2
	case RoleUser:
		return 1
	}
	return 0
}

// matchPrefix is a plain string prefix test. It errs toward protecting more
// paths: "/api/adminx" counts as an admin route.
func matchPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
