package auth

import (
	"time"

	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/platinummonkey/tablekeep/pkg/users"
)

// AuthContext holds authenticated user information
type AuthContext struct {
	UserID       int64
	Email        string
	Role         rbac.Role
	RestaurantID *int64
	Scope        tenancy.Scope
	TokenID      string
	ExpiresAt    time.Time
}

// Refresh replaces the identity carried by the token with the user's current
// record. The role/restaurant pairing is re-validated.
func (ac *AuthContext) Refresh(u *users.User) error {
	scope, err := tenancy.ScopeFor(u.Role, u.RestaurantID)
	if err != nil {
		return err
	}
	ac.Email = u.Email
	ac.Role = u.Role
	ac.RestaurantID = u.RestaurantID
	ac.Scope = scope
	return nil
}

// HasRole checks if the caller holds exactly role
func (ac *AuthContext) HasRole(role rbac.Role) bool {
	return ac.Role == role
}

// IsSuperAdmin reports whether the caller bypasses tenant scoping
func (ac *AuthContext) IsSuperAdmin() bool {
	return ac.Role.IsGlobal()
}
