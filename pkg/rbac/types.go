package rbac

import (
	"errors"
	"fmt"
)

// Role is one of the four fixed user roles
type Role string

const (
	RoleSuperAdmin      Role = "SUPER_ADMIN"
	RoleRestaurantOwner Role = "RESTAURANT_OWNER"
	RoleManager         Role = "MANAGER"
	RoleStaff           Role = "STAFF"
)

// ErrUnknownRole is returned when parsing a role name outside the fixed set
var ErrUnknownRole = errors.New("unknown role")

// Roles returns every role in descending order of privilege
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleRestaurantOwner, RoleManager, RoleStaff}
}

// Valid reports whether r is one of the fixed roles
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleRestaurantOwner, RoleManager, RoleStaff:
		return true
	}
	return false
}

// IsGlobal reports whether the role operates outside any tenant
func (r Role) IsGlobal() bool {
	return r == RoleSuperAdmin
}

// ParseRole converts a string to a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Resource represents a resource type in the system
type Resource string

const (
	ResourceCustomers Resource = "customers"
	ResourceStaff     Resource = "staff"
	ResourceSettings  Resource = "settings"
	ResourceBilling   Resource = "billing"
	ResourceReports   Resource = "reports"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Permission is one catalog row
type Permission struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Resource    Resource `json:"resource"`
	Action      Action   `json:"action"`
	Description string   `json:"description"`
}

// RolePermission is an edge between a role and a catalog permission
type RolePermission struct {
	ID             int64  `json:"id"`
	Role           Role   `json:"role"`
	PermissionID   int64  `json:"permission_id"`
	PermissionName string `json:"permission_name"`
}

// PermissionName builds the "resource:action" name
func PermissionName(resource Resource, action Action) string {
	return string(resource) + ":" + string(action)
}

// String returns the permission name
func (p Permission) String() string {
	if p.Name != "" {
		return p.Name
	}
	return PermissionName(p.Resource, p.Action)
}

// rank orders roles by privilege
var rank = map[Role]int{
	RoleSuperAdmin:      4,
	RoleRestaurantOwner: 3,
	RoleManager:         2,
	RoleStaff:           1,
}

// CanAssign reports whether a user holding actor may grant target to someone else.
// Nobody may grant a role above their own.
func CanAssign(actor, target Role) bool {
	a, ok := rank[actor]
	if !ok {
		return false
	}
	t, ok := rank[target]
	if !ok {
		return false
	}
	return a >= t
}
